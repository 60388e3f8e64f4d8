// Command relbias inspects the relative position buffers and bias heads used
// by windowed attention layers.
package main

import (
	"os"
)

func main() {
	if err := NewCLI().Execute(); err != nil {
		os.Exit(1)
	}
}
