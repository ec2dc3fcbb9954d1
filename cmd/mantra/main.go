package main

import (
	"fmt"
	"os"

	"github.com/mantra-hq/mantra/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mantra: %v\n", err)
		os.Exit(1)
	}
}
