// The main package for the reliefweb-corpus executable.
package main

import (
	"github.com/JakeFAU/reliefweb-corpus/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
