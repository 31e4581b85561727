// Command dealscope is the operator CLI: score snapshots offline, roll up
// AUM figures and validate rulebooks before deploying them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
