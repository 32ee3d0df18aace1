package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "nicheradar",
	Short: "Niche market research pipeline",
	Long: `NicheRadar discovers, scrapes, and analyzes market evidence for a
product niche and generates a research report.

Run "nicheradar serve" to expose the pipeline over HTTP, or
"nicheradar run" for a one-shot job from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
