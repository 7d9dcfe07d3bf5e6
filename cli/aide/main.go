package main

import (
	"os"

	aidecmder "github.com/lodestarhq/aide/cmd/aide"
)

func main() {
	cmd := aidecmder.NewAideCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
