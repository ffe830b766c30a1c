// Package graph implements the dependency-graph algorithms shared by the
// derived views, impact analysis, and forecast simulators.
package graph

import "github.com/plantwin/plantwin/internal/domain"

// Adjacency holds the forward and reverse edge maps for a plan's dependency
// graph. Successors[a] lists tasks that depend on a; Predecessors[a] lists
// tasks a depends on. Slices preserve edge input order.
type Adjacency struct {
	Successors   map[string][]string
	Predecessors map[string][]string
	// Dropped counts edges referencing task IDs absent from the plan.
	Dropped int
}

// BuildAdjacency constructs adjacency maps from tasks and edges. Edges whose
// endpoints are not both present are dropped and counted rather than failing
// the analysis, since sync snapshots can momentarily reference deleted tasks.
func BuildAdjacency(tasks []domain.Task, edges []domain.DependencyEdge) Adjacency {
	present := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		present[t.ID] = true
	}
	adj := Adjacency{
		Successors:   make(map[string][]string, len(tasks)),
		Predecessors: make(map[string][]string, len(tasks)),
	}
	for _, e := range edges {
		if !present[e.TaskID] || !present[e.DependsOnID] {
			adj.Dropped++
			continue
		}
		adj.Successors[e.DependsOnID] = append(adj.Successors[e.DependsOnID], e.TaskID)
		adj.Predecessors[e.TaskID] = append(adj.Predecessors[e.TaskID], e.DependsOnID)
	}
	return adj
}

// TopologicalOrder returns task IDs in dependency order using Kahn's
// algorithm, seeded and tie-broken by input order so the result is
// deterministic. When the graph contains a cycle, the acyclic prefix is
// followed by the remaining tasks in input order and cyclic is true.
func TopologicalOrder(tasks []domain.Task, adj Adjacency) (order []string, cyclic bool) {
	indegree := make(map[string]int, len(tasks))
	for _, t := range tasks {
		indegree[t.ID] = len(adj.Predecessors[t.ID])
	}

	var queue []string
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}

	order = make([]string, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		seen[id] = true
		for _, succ := range adj.Successors[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(order) < len(tasks) {
		cyclic = true
		for _, t := range tasks {
			if !seen[t.ID] {
				order = append(order, t.ID)
			}
		}
	}
	return order, cyclic
}

// PathResult is the longest dependency chain through a plan.
type PathResult struct {
	// Path lists task IDs from chain start to chain end.
	Path []string
	// Length is the number of tasks on the path.
	Length int
	// Cyclic reports whether the graph contained a cycle, in which case the
	// path covers only the acyclic portion.
	Cyclic bool
}

// CriticalPath computes the longest path through the dependency graph by
// dynamic programming over the topological order. Each task contributes unit
// length. Ties resolve to the first predecessor in edge order, so repeated
// calls over the same snapshot return the same path.
func CriticalPath(tasks []domain.Task, adj Adjacency) PathResult {
	if len(tasks) == 0 {
		return PathResult{Path: []string{}}
	}

	order, cyclic := TopologicalOrder(tasks, adj)
	onOrder := make(map[string]bool, len(order))
	dist := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))

	// In the cyclic case only the acyclic prefix participates. Every task in
	// the prefix has all predecessors earlier in the order, so the first task
	// with an unresolved predecessor marks the boundary.
	limit := len(order)
	if cyclic {
		limit = 0
		resolved := make(map[string]bool, len(tasks))
		for _, id := range order {
			ok := true
			for _, p := range adj.Predecessors[id] {
				if !resolved[p] {
					ok = false
					break
				}
			}
			if !ok {
				break
			}
			resolved[id] = true
			limit++
		}
	}

	for i := 0; i < limit; i++ {
		id := order[i]
		onOrder[id] = true
		best := 0
		from := ""
		for _, p := range adj.Predecessors[id] {
			if !onOrder[p] {
				continue
			}
			if dist[p] > best {
				best = dist[p]
				from = p
			}
		}
		dist[id] = best + 1
		if from != "" {
			prev[id] = from
		}
	}

	end := ""
	for i := 0; i < limit; i++ {
		id := order[i]
		if end == "" || dist[id] > dist[end] {
			end = id
		}
	}
	if end == "" {
		return PathResult{Path: []string{}, Cyclic: cyclic}
	}

	var path []string
	for id := end; id != ""; id = prev[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return PathResult{Path: path, Length: dist[end], Cyclic: cyclic}
}

// Downstream returns every task transitively depending on start, in BFS
// order. The start task itself is excluded.
func Downstream(start string, adj Adjacency) []string {
	visited := map[string]bool{start: true}
	queue := append([]string(nil), adj.Successors[start]...)
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		out = append(out, id)
		queue = append(queue, adj.Successors[id]...)
	}
	return out
}
