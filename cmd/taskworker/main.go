// Command taskworker runs external-task subscriptions declared in a config
// file against a remote engine or the embedded database broker.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
