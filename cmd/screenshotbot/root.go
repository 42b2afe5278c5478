package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func execute() {
	rootCmd := &cobra.Command{
		Use:           "screenshotbot",
		Short:         "Telegram bot that turns uploaded videos into screenshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGrabCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
