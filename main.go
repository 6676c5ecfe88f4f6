package main

import "github.com/engramdev/engram/cmd"

func main() {
	cmd.Execute()
}
