/*
Copyright © 2024 paul <paul@denknerd.org>
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/toothbrush/confluence-export/internal/termfmt"
	"github.com/toothbrush/confluence-export/ledger"
	"github.com/toothbrush/confluence-export/localdump"
	"github.com/toothbrush/confluence-export/resolve"
)

var exportUsage = strings.TrimSpace(`
Export pages to <store>/html and <store>/pdf.  Pick what to export with one of

  --page-id ID                 that page and everything below it
  --page-title T --space KEY   the same, looked up by title
  --space KEY                  every page in the space
  (nothing)                    pages modified in the last --days days, then any page in any
                               space that was never exported

Pages whose version hasn't changed since the last export are skipped.
`)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export new and changed pages",
	Long:  exportUsage,
	Args:  cobra.ExactArgs(0),
	RunE:  runExport,
}

var (
	PageID         string
	PageTitle      string
	SpaceKey       string
	Days           int
	NoRecursive    bool
	HTMLOnly       bool
	WriteMarkdown  bool
	NoCheckMissing bool
	Wkhtmltopdf    string
	WithVCR        bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&PageID, "page-id", "", "export this page and its descendants")
	exportCmd.Flags().StringVar(&PageTitle, "page-title", "", "export the page with this title (needs --space) and its descendants")
	exportCmd.Flags().StringVar(&SpaceKey, "space", "", "export this space")
	exportCmd.Flags().IntVar(&Days, "days", localdump.DefaultDays, "only export pages modified in the last N days")
	exportCmd.Flags().BoolVar(&NoRecursive, "no-recursive", false, "don't descend into child pages")
	exportCmd.Flags().BoolVar(&HTMLOnly, "html-only", false, "don't render PDFs")
	exportCmd.Flags().BoolVar(&WriteMarkdown, "write-markdown", false, "also write Markdown with YAML front matter")
	exportCmd.Flags().BoolVar(&NoCheckMissing, "no-check-missing", false, "without a selection, don't look for pages that were never exported")
	exportCmd.Flags().StringVar(&Wkhtmltopdf, "wkhtmltopdf", "", "path to wkhtmltopdf (default: search PATH)")
	exportCmd.Flags().BoolVar(&WithVCR, "with-vcr", false, "use go-vcr to record and replay responses")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if PageTitle != "" && SpaceKey == "" {
		return fmt.Errorf("cmd: --page-title needs --space")
	}

	storePath, err := expandPath("store", LocalStore)
	if err != nil {
		return err
	}
	statePath, err := resolveStatePath()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", runID[:8]), log.LstdFlags|log.Lmsgprefix)
	logger.Printf("starting export run %s", runID)

	api, stop, err := newAPI(ctx, logger, WithVCR)
	if err != nil {
		return err
	}
	defer stop()

	if user, err := api.CurrentUser(ctx); err == nil {
		logger.Printf("logged in to %s as '%s'", api.BaseURI, user.DisplayName)
	} else {
		// Some instances hide /user/current from tokens; the export itself may still work.
		debugLog("Couldn't query current user: %v\n", err)
	}

	state, err := ledger.Open(statePath, logger)
	if err != nil {
		return fmt.Errorf("cmd: couldn't open ledger: %w", err)
	}
	defer state.Close()
	logger.Printf("ledger %s knows %d page(s)", state.Path(), state.Len())

	var renderer localdump.Renderer
	if !HTMLOnly {
		path, err := localdump.FindWkhtmltopdf(Wkhtmltopdf)
		switch {
		case errors.Is(err, localdump.ErrRendererMissing):
			debugLog("%v\n", err)
		case err != nil:
			return fmt.Errorf("cmd: %w", err)
		default:
			debugLog("Rendering PDFs with %s.\n", path)
			renderer = localdump.NewWkhtmltopdf(path, logger)
		}
	}

	var progress io.Writer
	if isTerminal(os.Stderr) {
		progress = os.Stderr
	}

	exporter := &localdump.Exporter{
		StorePath:     storePath,
		HTMLOnly:      HTMLOnly,
		WriteMarkdown: WriteMarkdown,
		Transformer: &localdump.Transformer{
			BaseURL:     cloneURL(api.BaseURI),
			Attachments: api,
			Logger:      logger,
		},
		Renderer: renderer,
		Ledger:   state,
		Logger:   logger,
		Progress: progress,
	}

	selection := localdump.Selection{
		PageID:       PageID,
		Title:        PageTitle,
		SpaceKey:     SpaceKey,
		Days:         Days,
		DaysSet:      cmd.Flags().Changed("days"),
		CheckMissing: !NoCheckMissing,
	}

	stats, syncErr := exporter.Sync(ctx, resolve.New(api, !NoRecursive, logger), selection)

	if !isTerminal(os.Stdout) {
		termfmt.SetMode(termfmt.Plain)
	}
	printSummary(os.Stdout, stats)

	if syncErr != nil {
		return fmt.Errorf("cmd: export run %s failed: %w", runID, syncErr)
	}
	return nil
}

func printSummary(w io.Writer, s localdump.Stats) {
	fmt.Fprintf(w, "\n%s\n", termfmt.Bold().V("Export summary"))
	fmt.Fprintf(w, "  Pages from API:  %d\n", s.TotalFromAPI)
	fmt.Fprintf(w, "  Pages:           %d exported, %d skipped, %d failed\n",
		termfmt.OK.Count(s.Processed), termfmt.Dim.V(s.Skipped), termfmt.Bad.Count(s.Failed))
	fmt.Fprintf(w, "  HTML:            %d written, %d skipped, %d failed\n",
		termfmt.OK.Count(s.HTMLProcessed), termfmt.Dim.V(s.HTMLSkipped), termfmt.Bad.Count(s.HTMLFailed))
	fmt.Fprintf(w, "  PDF:             %d written, %d skipped, %d failed\n",
		termfmt.OK.Count(s.PDFProcessed), termfmt.Dim.V(s.PDFSkipped), termfmt.Warn.Count(s.PDFFailed))
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	return &c
}
