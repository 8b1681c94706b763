// runec is the command-line inspector and runner for rune modules.
//
// Usage:
//
//	runec run <module-file> <export-name> [i32 args...]
//	runec inspect <module-file>
package main

import (
	"os"

	"github.com/spf13/afero"
)

func main() {
	os.Exit(newRootCommand(afero.NewOsFs(), os.Stdout).execute())
}
