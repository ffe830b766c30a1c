package main

import "github.com/plantwin/plantwin/services/scheduler/cli"

func main() {
	cli.Execute()
}
