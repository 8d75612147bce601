package main

import (
	"os"

	lmgatecmder "github.com/papercomputeco/lmgate/cmd/lmgate"
)

func main() {
	cmd := lmgatecmder.NewLmgateCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
