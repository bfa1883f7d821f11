/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var configUsage = strings.TrimSpace(`
Every persistent flag can also be set in a YAML file, keyed by the flag's name.  It is read from
--config, then $CONFLUENCE_EXPORT_CONFIG, then ` + defaultConfigPath + `.  Flags given on the command line
win over the file.
`)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show where settings come from",
	Long:  configUsage,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
