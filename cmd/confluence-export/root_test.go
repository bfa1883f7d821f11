package main

import (
	"bytes"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/toothbrush/confluence-export/ledger"
	"github.com/toothbrush/confluence-export/localdump"
)

func TestBindFlagsFillsUnsetFlagsOnly(t *testing.T) {
	var (
		store, url string
		days       int
		htmlOnly   bool
		tokenCmd   []string
	)
	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	cmd.Flags().StringVar(&store, "store", "", "")
	cmd.Flags().StringVar(&url, "confluence-url", "", "")
	cmd.Flags().IntVar(&days, "days", 1, "")
	cmd.Flags().BoolVar(&htmlOnly, "html-only", false, "")
	cmd.Flags().StringSliceVar(&tokenCmd, "auth-token-cmd", nil, "")

	if err := cmd.ParseFlags([]string{"--store", "/from/flag"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	var cfg YamlConfig
	err := yaml.UnmarshalStrict([]byte(`
store: /from/config
confluence-url: https://example.atlassian.net/wiki
days: 7
html-only: true
auth-token-cmd: [pass, show, confluence]
wkhtmltopdf: /opt/bin/wkhtmltopdf
`), &cfg)
	if err != nil {
		t.Fatalf("UnmarshalStrict: %v", err)
	}

	if err := bindFlags(cmd, cfg); err != nil {
		t.Fatalf("bindFlags: %v", err)
	}

	if store != "/from/flag" {
		t.Errorf("explicit flag was overridden: %q", store)
	}
	if url != "https://example.atlassian.net/wiki" || days != 7 || !htmlOnly {
		t.Errorf("config not applied: url=%q days=%d html-only=%v", url, days, htmlOnly)
	}
	if diff := cmp.Diff([]string{"pass", "show", "confluence"}, tokenCmd); diff != "" {
		t.Errorf("auth-token-cmd mismatch (-want +got):\n%s", diff)
	}
	// Set through the config file counts as given, so --days also filters.
	if !cmd.Flags().Changed("days") {
		t.Errorf("days should be marked as changed")
	}
}

func TestConfigRejectsUnknownKeys(t *testing.T) {
	var cfg YamlConfig
	if err := yaml.UnmarshalStrict([]byte("always-download: true\n"), &cfg); err == nil {
		t.Fatalf("expected an error for an unknown key")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, localdump.Stats{
		TotalFromAPI: 5, Processed: 2, Skipped: 3,
		HTMLProcessed: 2, HTMLSkipped: 3,
		PDFProcessed: 1, PDFSkipped: 3, PDFFailed: 1,
	})

	out := buf.String()
	for _, want := range []string{"Pages from API:  5", "HTML:", "PDF:"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("expected %q in summary:\n%s", want, out)
		}
	}
}

func TestBuildVersion(t *testing.T) {
	rev := []debug.BuildSetting{{Key: "vcs.revision", Value: "0a1b2c3d4e5f60718293"}}
	dirty := append(rev, debug.BuildSetting{Key: "vcs.modified", Value: "true"})

	for _, tc := range []struct {
		name string
		info debug.BuildInfo
		want string
	}{
		{"nothing known", debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "devel"},
		{"go install", debug.BuildInfo{Main: debug.Module{Version: "v1.2.0"}}, "v1.2.0"},
		{"checkout", debug.BuildInfo{Settings: rev}, "devel-rev-0a1b2c3d4e5f"},
		{"dirty checkout", debug.BuildInfo{Settings: dirty}, "devel-rev-0a1b2c3d4e5f-dirty"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildVersion(&tc.info); got != tc.want {
				t.Errorf("buildVersion = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPrintVersionNamesLedgerFormat(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf, &debug.BuildInfo{GoVersion: "go1.22.1"})

	out := buf.String()
	if !strings.HasPrefix(out, "confluence-export devel\n") {
		t.Errorf("unexpected first line:\n%s", out)
	}
	for _, want := range []string{ledger.SchemaURL, "go1.22.1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}
