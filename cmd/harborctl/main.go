// Command harborctl runs the multi-agent terminal harness control plane.
// See internal/cli for the command tree and internal/supervisor for the
// bind/serve/shutdown sequence.
package main

import (
	"fmt"
	"os"

	"github.com/harborctl/harborctl/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
