// The main package for the crawlstore executable.
package main

import (
	"github.com/JakeFAU/crawlstore/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
