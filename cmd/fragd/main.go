// Command fragd serves the fragment router and saga coordinator.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alem-hub/fragstore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
