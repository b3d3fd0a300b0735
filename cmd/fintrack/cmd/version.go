package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the fintrack CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fintrack version %s\n", version)
		fmt.Println("Personal finance ledger with savings goals and investment tracking")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
