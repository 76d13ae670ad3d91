package main

import "github.com/CraigKelly/netsize/cmd"

func main() {
	cmd.Execute()
}
