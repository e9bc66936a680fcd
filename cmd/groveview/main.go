// Command groveview opens, runs and inspects grove scene files.
//
//	groveview view level.yaml --watch
//	groveview run level.yaml --tps 30 --metrics :9090
//	groveview dump level.yaml
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("groveview failed", "err", err)
		os.Exit(1)
	}
}
