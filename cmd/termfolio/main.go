// Command termfolio serves the portfolio terminal over SSH and websockets, or
// runs it locally on the controlling TTY.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
