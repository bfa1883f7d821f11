/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"
)

var listSpacesUsage = strings.TrimSpace(`
If you want to find out what spaces your Confluence wiki has, use this command.  The keys are what
--space expects.
`)

var IncludePersonal bool

var listSpacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "Print list of spaces",
	Long:  listSpacesUsage,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := log.New(os.Stderr, "", log.LstdFlags)

		api, stop, err := newAPI(ctx, logger, false)
		if err != nil {
			return err
		}
		defer stop()

		logger.Printf("Listing Confluence spaces in %s...\n", api.BaseURI)
		spacesRemote, err := api.ListAllSpaces(ctx, IncludePersonal)
		if err != nil {
			return fmt.Errorf("cmd: couldn't list Confluence spaces: %w", err)
		}

		logger.Printf("Found %d spaces.\n", len(spacesRemote))

		spaceKeys := maps.Keys(spacesRemote)
		sort.Strings(spaceKeys)

		fmt.Printf("spaces:\n")
		for _, spaceKey := range spaceKeys {
			fmt.Printf("  - %s: %s\n", spaceKey, spacesRemote[spaceKey].Name)
		}

		return nil
	},
}

func init() {
	listCmd.AddCommand(listSpacesCmd)

	listSpacesCmd.Flags().BoolVar(&IncludePersonal, "include-personal-spaces", false, "list individuals' personal spaces")
}
