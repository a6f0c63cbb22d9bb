package main

import "github.com/vcsreplica/engine/cmd"

func main() {
	cmd.Execute()
}
