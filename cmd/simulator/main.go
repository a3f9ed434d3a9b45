// Package main is the entry point for the investment simulator. It composes
// allocation models from YAML or JSON scripts, solves them over Alpha Vantage
// market data and stores the resulting reports.
//
// Commands:
//   - run:   solve one script and print its report
//   - serve: expose the HTTP API and run scheduled jobs
//   - kinds: list the objective and constraint kinds scripts may use
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
