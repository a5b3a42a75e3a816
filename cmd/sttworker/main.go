// Command sttworker is a Nextcloud speech-to-text task worker.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sttworker:", err)
		os.Exit(1)
	}
}
