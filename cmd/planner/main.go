package main

import "todo-planner/internal/cli"

func main() {
	cli.Execute()
}
