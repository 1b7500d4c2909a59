package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "funnelctl",
		Short:        "funnelctl - operator tool for the funnelhook enrollment service",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(bouncesCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
