package main

import "github.com/plantwin/plantwin/services/simworker/cli"

func main() {
	cli.Execute()
}
