/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// effectiveConfig is what the persistent flags resolved to, after the config file was applied.
type effectiveConfig struct {
	Config        string   `yaml:"config"`
	Debug         bool     `yaml:"debug"`
	ConfluenceURL string   `yaml:"confluence-url"`
	AuthUsername  string   `yaml:"auth-username,omitempty"`
	AuthTokenCmd  []string `yaml:"auth-token-cmd,flow"`
	CookieFile    string   `yaml:"cookie-file,omitempty"`
	Store         string   `yaml:"store"`
	StateFile     string   `yaml:"state-file,omitempty"`
	MaxRetries    int      `yaml:"max-retries"`
	BaseDelayMS   int      `yaml:"base-delay-ms"`
	PageLimit     int      `yaml:"page-limit"`
	ThrottleMS    int      `yaml:"throttle-ms"`
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Output current config",
	Long: `
Is something not working for you?  Have a look whether your config is as you expect.  Only the
settings shared by all commands are shown; see 'export --help' for the rest.
`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		current := effectiveConfig{
			Config:        ConfigActual,
			Debug:         Debug,
			ConfluenceURL: ConfluenceURL,
			AuthUsername:  AuthUsername,
			AuthTokenCmd:  AuthTokenCmd,
			CookieFile:    CookieFile,
			Store:         LocalStore,
			StateFile:     StateFile,
			MaxRetries:    MaxRetries,
			BaseDelayMS:   BaseDelayMS,
			PageLimit:     PageLimit,
			ThrottleMS:    ThrottleMS,
		}

		fmt.Printf("# Dump current config state:\n")
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(current); err != nil {
			return fmt.Errorf("cmd: couldn't print config: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(showCmd)
}
