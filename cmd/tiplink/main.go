// Command tiplink runs the identity link oracle and tip escrow ledger.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/tiplink/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "tiplink:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
