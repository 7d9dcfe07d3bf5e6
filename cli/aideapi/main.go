package main

import (
	"os"

	"github.com/lodestarhq/aide/cmd/aide/servecmder"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "aideapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .aide/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
