/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List what the export could pick from",
	Long: `
Look around the wiki with the same credentials and --confluence-url the export uses, e.g. to find
the key to pass to "export --space".
`,
}

func init() {
	rootCmd.AddCommand(listCmd)
}
