package graph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantwin/plantwin/internal/domain"
)

func mkTasks(ids ...string) []domain.Task {
	out := make([]domain.Task, len(ids))
	for i, id := range ids {
		out[i] = domain.Task{ID: id, Title: "task " + id}
	}
	return out
}

func mkEdges(pairs ...[2]string) []domain.DependencyEdge {
	out := make([]domain.DependencyEdge, len(pairs))
	for i, p := range pairs {
		out[i] = domain.DependencyEdge{TaskID: p[0], DependsOnID: p[1], Type: domain.DependencyTypeFS}
	}
	return out
}

func TestBuildAdjacencyDropsDanglingEdges(t *testing.T) {
	tasks := mkTasks("a", "b")
	edges := mkEdges([2]string{"b", "a"}, [2]string{"b", "ghost"}, [2]string{"ghost", "a"})
	adj := BuildAdjacency(tasks, edges)
	assert.Equal(t, 2, adj.Dropped)
	assert.Equal(t, []string{"b"}, adj.Successors["a"])
	assert.Equal(t, []string{"a"}, adj.Predecessors["b"])
}

func TestTopologicalOrderDiamond(t *testing.T) {
	tasks := mkTasks("a", "b", "c", "d")
	edges := mkEdges(
		[2]string{"b", "a"},
		[2]string{"c", "a"},
		[2]string{"d", "b"},
		[2]string{"d", "c"},
	)
	order, cyclic := TopologicalOrder(tasks, BuildAdjacency(tasks, edges))
	assert.False(t, cyclic)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestTopologicalOrderCycleFallback(t *testing.T) {
	tasks := mkTasks("a", "b", "c")
	edges := mkEdges(
		[2]string{"b", "a"},
		[2]string{"a", "b"},
	)
	order, cyclic := TopologicalOrder(tasks, BuildAdjacency(tasks, edges))
	assert.True(t, cyclic)
	// c is acyclic, then the cycle members follow in input order.
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestCriticalPathEmpty(t *testing.T) {
	res := CriticalPath(nil, BuildAdjacency(nil, nil))
	assert.Empty(t, res.Path)
	assert.Equal(t, 0, res.Length)
	assert.False(t, res.Cyclic)
}

func TestCriticalPathChainWithBranch(t *testing.T) {
	tasks := mkTasks("a", "b", "c", "d", "e")
	edges := mkEdges(
		[2]string{"b", "a"},
		[2]string{"c", "b"},
		[2]string{"d", "c"},
		[2]string{"e", "a"}, // short branch
	)
	res := CriticalPath(tasks, BuildAdjacency(tasks, edges))
	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Path)
	assert.Equal(t, 4, res.Length)
}

func TestCriticalPathTieBreaksOnFirstPredecessor(t *testing.T) {
	// Two equal-length chains into d; the first-listed predecessor wins.
	tasks := mkTasks("a1", "a2", "b1", "b2", "d")
	edges := mkEdges(
		[2]string{"a2", "a1"},
		[2]string{"b2", "b1"},
		[2]string{"d", "a2"},
		[2]string{"d", "b2"},
	)
	res := CriticalPath(tasks, BuildAdjacency(tasks, edges))
	assert.Equal(t, []string{"a1", "a2", "d"}, res.Path)
}

func TestCriticalPathCyclicPrefix(t *testing.T) {
	tasks := mkTasks("a", "b", "x", "y")
	edges := mkEdges(
		[2]string{"b", "a"},
		[2]string{"x", "y"},
		[2]string{"y", "x"},
	)
	res := CriticalPath(tasks, BuildAdjacency(tasks, edges))
	assert.True(t, res.Cyclic)
	assert.Equal(t, []string{"a", "b"}, res.Path)
	assert.Equal(t, 2, res.Length)
}

// bruteLongest enumerates every simple path; only safe for tiny graphs.
func bruteLongest(tasks []domain.Task, adj Adjacency) int {
	best := 0
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if depth > best {
			best = depth
		}
		for _, s := range adj.Successors[id] {
			walk(s, depth+1)
		}
	}
	for _, t := range tasks {
		walk(t.ID, 1)
	}
	return best
}

func TestCriticalPathMatchesBruteForceOnRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 3 + rng.Intn(10)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("t%d", i)
		}
		tasks := mkTasks(ids...)
		// Forward-only edges keep the graph acyclic.
		var edges []domain.DependencyEdge
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Float64() < 0.3 {
					edges = append(edges, domain.DependencyEdge{TaskID: ids[j], DependsOnID: ids[i], Type: domain.DependencyTypeFS})
				}
			}
		}
		adj := BuildAdjacency(tasks, edges)
		res := CriticalPath(tasks, adj)
		require.False(t, res.Cyclic)
		assert.Equal(t, bruteLongest(tasks, adj), res.Length, "trial %d", trial)
		assert.Len(t, res.Path, res.Length)
	}
}

func TestCriticalPathDeterministic(t *testing.T) {
	tasks := mkTasks("a", "b", "c", "d", "e", "f")
	edges := mkEdges(
		[2]string{"c", "a"},
		[2]string{"c", "b"},
		[2]string{"d", "c"},
		[2]string{"e", "c"},
		[2]string{"f", "d"},
		[2]string{"f", "e"},
	)
	adj := BuildAdjacency(tasks, edges)
	first := CriticalPath(tasks, adj)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CriticalPath(tasks, adj))
	}
}

func TestDownstream(t *testing.T) {
	tasks := mkTasks("a", "b", "c", "d", "e")
	edges := mkEdges(
		[2]string{"b", "a"},
		[2]string{"c", "a"},
		[2]string{"d", "b"},
		[2]string{"d", "c"},
	)
	adj := BuildAdjacency(tasks, edges)
	assert.Equal(t, []string{"b", "c", "d"}, Downstream("a", adj))
	assert.Empty(t, Downstream("e", adj))
	assert.Empty(t, Downstream("d", adj))
}
