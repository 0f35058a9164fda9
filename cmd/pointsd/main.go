/*
main.go - Application entry point

PURPOSE:
  Dispatches to the pointsd CLI. All real work happens in the command
  implementations (serve.go, regen.go, delete_category.go).

COMMANDS:
  pointsd serve            Run the HTTP API server
  pointsd regen-logs       Re-render log text for a category
  pointsd delete-category  Cascade-delete a category

SEE ALSO:
  - root.go: Command tree and global flags
  - config: YAML configuration format
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
