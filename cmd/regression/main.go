package main

import (
	"fmt"
	"os"

	"github.com/NethermindEth/eternal-regression/cmd/regression/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
