package main

import "github.com/plantwin/plantwin/services/api/cli"

func main() {
	cli.Execute()
}
