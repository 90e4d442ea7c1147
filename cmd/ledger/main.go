// Command ledger is the operator CLI for the ledger ingestion core.
package main

import (
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
