// Command assetsync builds checksum trees of solution manifests and
// synchronizes them into local replicas.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/assetsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err == nil {
		return
	}
	// Commands report their own failures; anything else is a usage error
	// cobra did not print.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
