package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/docmark/internal/engine"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported input formats",
	Run: func(cmd *cobra.Command, args []string) {
		for _, ext := range engine.SupportedExtensions() {
			fmt.Println(ext)
		}
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
