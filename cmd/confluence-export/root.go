/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

const defaultConfigPath = "~/.config/confluence-export.yaml"

var (
	// Store the result of binding cobra flags
	Config string
	// Path of the config file that was actually read, empty if there was none.
	ConfigActual string
	Debug        bool

	// Command to run to retrieve API Personal Access Token
	AuthTokenCmd []string

	AuthUsername  string
	CookieFile    string
	LocalStore    string
	StateFile     string
	ConfluenceURL string

	MaxRetries  int
	BaseDelayMS int
	PageLimit   int
	ThrottleMS  int

	ParsedConfig YamlConfig
)

// Build the cobra command that handles our command line tool.
var rootCmd = &cobra.Command{
	Use:   "confluence-export",
	Short: "Keep a local HTML and PDF copy of a Confluence wiki up to date",
	Long: `
Export Confluence pages as standalone HTML files and PDFs.  A ledger of exported page versions
is kept next to the output, so that running this from cron only does work for pages that are new
or have changed since the last run.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(cmd); err != nil {
			return fmt.Errorf("confluence-export: failed to initialise config: %w", err)
		}
		return nil
	},
}

func init() {
	// Define cobra flags, the default value has the lowest (least significant) precedence
	rootCmd.PersistentFlags().StringVar(&Config, "config", "", "config file location (default: "+defaultConfigPath+", respects CONFLUENCE_EXPORT_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "display debug output")
	rootCmd.PersistentFlags().StringSliceVar(&AuthTokenCmd, "auth-token-cmd", []string{}, "shell command to retrieve Atlassian auth token (default: $CONFLUENCE_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&AuthUsername, "auth-username", "", "your Atlassian username; without one the token is sent as a bearer token")
	rootCmd.PersistentFlags().StringVar(&CookieFile, "cookie-file", "", "file holding a browser Cookie header, for SSO-protected instances")
	rootCmd.PersistentFlags().StringVar(&LocalStore, "store", "", "location to save exported pages")
	rootCmd.PersistentFlags().StringVar(&StateFile, "state-file", "", "ledger of exported versions (default: <store>/state/ledger.json)")
	rootCmd.PersistentFlags().StringVar(&ConfluenceURL, "confluence-url", "", "your wiki, e.g. https://ORG.atlassian.net/wiki")
	rootCmd.PersistentFlags().IntVar(&MaxRetries, "max-retries", 3, "retries for transient server errors, 0 to disable")
	rootCmd.PersistentFlags().IntVar(&BaseDelayMS, "base-delay-ms", 1000, "base delay between retries, in milliseconds")
	rootCmd.PersistentFlags().IntVar(&PageLimit, "page-limit", 100, "page size of paginated listings")
	rootCmd.PersistentFlags().IntVar(&ThrottleMS, "throttle-ms", 500, "minimum delay between two requests, in milliseconds")
}

func initializeConfig(cmd *cobra.Command) error {
	if Config == "" {
		// Did the user provide an ENV?
		envConfig := os.Getenv("CONFLUENCE_EXPORT_CONFIG")
		if envConfig != "" {
			Config = envConfig
		} else {
			// As fallback, search for config in home XDG-ish directory
			Config = defaultConfigPath
		}
	}
	config, err := homedir.Expand(Config)
	if err != nil {
		return fmt.Errorf("confluence-export: unable to expand homedir: %w", err)
	}
	Config = config

	yamlFile, err := os.ReadFile(Config)
	if errors.Is(err, os.ErrNotExist) {
		// Flags alone are fine.
		debugLog("No config file at %s, using flags only.\n", Config)
		return nil
	}
	if err != nil {
		return fmt.Errorf("confluence-export: error reading config file: %w", err)
	}
	ConfigActual = Config

	// I'd like to bark if a user sets a flag we don't recognise:
	if err := yaml.UnmarshalStrict(yamlFile, &ParsedConfig); err != nil {
		return fmt.Errorf("confluence-export: issue parsing config file: %w", err)
	}

	if err := bindFlags(cmd, ParsedConfig); err != nil {
		return fmt.Errorf("confluence-export: failed to bind flags: %w", err)
	}

	return nil
}

type YamlConfig struct {
	HTMLOnly       *bool `yaml:"html-only"`
	WriteMarkdown  *bool `yaml:"write-markdown"`
	NoRecursive    *bool `yaml:"no-recursive"`
	NoCheckMissing *bool `yaml:"no-check-missing"`
	WithVCR        *bool `yaml:"with-vcr"`

	Days        *int `yaml:"days"`
	MaxRetries  *int `yaml:"max-retries"`
	BaseDelayMS *int `yaml:"base-delay-ms"`
	PageLimit   *int `yaml:"page-limit"`
	ThrottleMS  *int `yaml:"throttle-ms"`

	StorePath     string   `yaml:"store"`
	StateFile     string   `yaml:"state-file"`
	ConfluenceURL string   `yaml:"confluence-url"`
	AuthUsername  string   `yaml:"auth-username"`
	AuthTokenCmd  []string `yaml:"auth-token-cmd"`
	CookieFile    string   `yaml:"cookie-file"`
	Wkhtmltopdf   string   `yaml:"wkhtmltopdf"`
}

// Copy each value from the config file onto its cobra flag, unless the flag was given explicitly.
func bindFlags(cmd *cobra.Command, v YamlConfig) error {
	for _, field := range structs.Fields(v) {
		key := field.Tag("yaml")
		if key == "" {
			return fmt.Errorf("confluence-export: could not retrieve struct tag 'yaml'")
		}
		if flag := cmd.Flag(key); flag == nil {
			// The flag is unknown, which legitimately happens when running e.g. `list spaces`
			// with a config file that sets `html-only`.
			continue
		}
		if cmd.Flags().Changed(key) {
			continue
		}

		var values []string
		switch field.Kind() {
		case reflect.Ptr:
			switch p := field.Value().(type) {
			case *bool:
				if p != nil {
					values = append(values, strconv.FormatBool(*p))
				}
			case *int:
				if p != nil {
					values = append(values, strconv.Itoa(*p))
				}
			default:
				return fmt.Errorf("confluence-export: found unrecognised field: %s", field.Name())
			}

		case reflect.String:
			if s, _ := field.Value().(string); s != "" {
				values = append(values, s)
			}

		case reflect.Slice:
			ss, ok := field.Value().([]string)
			if !ok {
				return fmt.Errorf("confluence-export: found unrecognised field: %s", field.Name())
			}
			// yes, repeatedly calling Set() appends to the slice...
			values = append(values, ss...)

		default:
			return fmt.Errorf("confluence-export: found unrecognised field: %s", field.Name())
		}

		for _, value := range values {
			if err := cmd.Flags().Set(key, value); err != nil {
				return fmt.Errorf("confluence-export: bad value %q for %s: %w", value, key, err)
			}
		}
	}

	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("confluence-export: execution error: %w", err)
	}

	return nil
}
