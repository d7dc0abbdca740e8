package main

import (
	"fmt"
	"os"

	"secscan/cmd"
	"secscan/logger"
)

func main() {
	defer logger.Sync()

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic recovered in main: %v\n", r)
			logger.Sync()
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
