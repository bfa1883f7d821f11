/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toothbrush/confluence-export/ledger"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the build and the ledger format it reads and writes",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return fmt.Errorf("cmd: could not read build info")
		}
		printVersion(os.Stdout, info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Set with -ldflags "-X main.Version=..." by release builds.  Otherwise the module version from
// "go install url/tool@version" is used, if there is one.
var Version = "unknown"

// buildVersion is e.g. "v1.2.0", "v1.2.0-rev-0a1b2c3d4e5f" or "devel-rev-0a1b2c3d4e5f-dirty".
func buildVersion(info *debug.BuildInfo) string {
	version := Version
	if version == "unknown" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}

	var revision string
	dirty := false
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			revision = kv.Value
		case "vcs.modified":
			dirty = kv.Value == "true"
		}
	}

	var parts []string
	if version != "unknown" {
		parts = append(parts, version)
	}
	if revision != "" {
		if len(parts) == 0 {
			parts = append(parts, "devel")
		}
		parts = append(parts, "rev", revision[:min(len(revision), 12)])
		if dirty {
			parts = append(parts, "dirty")
		}
	}
	if len(parts) == 0 {
		return "devel"
	}
	return strings.Join(parts, "-")
}

func printVersion(w io.Writer, info *debug.BuildInfo) {
	fmt.Fprintf(w, "confluence-export %s\n", buildVersion(info))
	fmt.Fprintf(w, "  ledger format: %s\n", ledger.SchemaURL)
	if info.GoVersion != "" {
		fmt.Fprintf(w, "  built with:    %s\n", info.GoVersion)
	}
}
