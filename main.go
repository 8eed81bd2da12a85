// The main package for the agtalk-scraper executable.
package main

import (
	"github.com/mxfeinberg/agtalk-scraper/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
