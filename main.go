package main

import (
	"github.com/attestra-network/attestra-executor/command/root"
)

func main() {
	root.NewRootCommand().Execute()
}
