package main

import "github.com/shelltide/shelltide/cmd"

func main() {
	cmd.Execute()
}
