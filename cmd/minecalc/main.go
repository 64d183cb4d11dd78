package main

import (
	"github.com/Andhanc/minecalc/cmd/minecalc/commands"
)

func main() {
	commands.Execute()
}
