// Command fusion merges CSV and Excel files from the command line using the
// same clustering, renaming and merge engine as the web server.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
