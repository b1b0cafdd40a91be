// Command esmcat-validator checks a collection file against the JSON schema
// only, without reading the catalog file it references.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/gnemet/esmcol-validator/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewCommand("esmcat-validator", false).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
