/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/toothbrush/confluence-export/internal/termfmt"
	"github.com/toothbrush/confluence-export/ledger"
)

var StateSpace string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Commands to inspect the export ledger",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every page in the ledger",
	Long: `
Print the pages the ledger knows about, with the version that was last exported.  Fails if an
export is running, because the ledger is locked.
`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		statePath, err := resolveStatePath()
		if err != nil {
			return err
		}

		state, err := ledger.Open(statePath, log.New(os.Stderr, "", log.LstdFlags))
		if err != nil {
			return fmt.Errorf("cmd: couldn't open ledger: %w", err)
		}
		defer state.Close()

		if !isTerminal(os.Stdout) {
			termfmt.SetMode(termfmt.Plain)
		}

		if StateSpace != "" && !state.HasSpace(StateSpace) {
			fmt.Printf("Nothing from space %s has been exported yet.\n", StateSpace)
			return nil
		}

		fmt.Printf("%s (%d pages)\n", termfmt.Bold().V(state.Path()), state.Len())
		for _, id := range state.IDs() {
			entry, _ := state.Get(id)
			if StateSpace != "" && entry.SpaceKey != StateSpace {
				continue
			}
			fmt.Printf("  %-12s %-10s v%-4d %s  %s\n",
				id, entry.SpaceKey, entry.Version, termfmt.Dim.V(entry.LastModified), entry.Title)
		}
		return nil
	},
}

func resolveStatePath() (string, error) {
	if StateFile != "" {
		return expandPath("state-file", StateFile)
	}
	storePath, err := expandPath("store", LocalStore)
	if err != nil {
		return "", err
	}
	return filepath.Join(storePath, "state", "ledger.json"), nil
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)

	stateShowCmd.Flags().StringVar(&StateSpace, "space", "", "only show pages from this space")
}
