// Command starledger runs the family star ledger service.
package main

import (
	"fmt"
	"os"

	"github.com/xraph/starledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
