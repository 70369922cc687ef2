package main

import "github.com/tasklift/tasklift/cmd"

func main() {
	cmd.Execute()
}
