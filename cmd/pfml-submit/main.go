package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Badsworth/pfml-scripts-sub007/internal/cli"
)

func main() {
	err := cli.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	_ = zap.L().Sync()
	os.Exit(cli.ExitCode(err))
}
