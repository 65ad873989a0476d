package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the fxpilot CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fxpilot version %s\n", version)
		fmt.Println("An AI-assisted FX trading bot with backtesting and live monitoring")
		fmt.Println("https://github.com/rustyeddy/fxpilot")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
