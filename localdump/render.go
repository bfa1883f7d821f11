package localdump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var ErrRendererMissing = errors.New("localdump: wkhtmltopdf not found")

// Renderer turns an HTML file into a PDF file.
type Renderer interface {
	Render(ctx context.Context, htmlPath, pdfPath string) error
}

// Places wkhtmltopdf's installers put it, for when it isn't on PATH.
var wkhtmltopdfLocations = []string{
	"/usr/local/bin/wkhtmltopdf",
	"/usr/bin/wkhtmltopdf",
	"/opt/homebrew/bin/wkhtmltopdf",
	"/opt/wkhtmltopdf/bin/wkhtmltopdf",
	`C:\Program Files\wkhtmltopdf\bin\wkhtmltopdf.exe`,
	`C:\Program Files (x86)\wkhtmltopdf\bin\wkhtmltopdf.exe`,
}

// DefaultWkhtmltopdfArgs go before the input and output paths.
var DefaultWkhtmltopdfArgs = []string{
	"--quiet",
	"--enable-local-file-access",
	"--enable-javascript",
	"--javascript-delay", "2000",
	"--print-media-type",
	"--encoding", "UTF-8",
	"--images",
	"--load-error-handling", "ignore",
	"--load-media-error-handling", "ignore",
	"--enable-smart-shrinking",
	"--image-quality", "100",
	"--image-dpi", "300",
}

// FindWkhtmltopdf returns the configured path if it is executable, otherwise looks on PATH and in
// the usual install locations.
func FindWkhtmltopdf(configured string) (string, error) {
	if configured != "" {
		if p, err := exec.LookPath(configured); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w at %s", ErrRendererMissing, configured)
	}

	if p, err := exec.LookPath("wkhtmltopdf"); err == nil {
		return p, nil
	}

	for _, candidate := range wkhtmltopdfLocations {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", ErrRendererMissing
}

type Wkhtmltopdf struct {
	Path string
	Args []string

	Logger *log.Logger
}

func NewWkhtmltopdf(path string, logger *log.Logger) *Wkhtmltopdf {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Wkhtmltopdf{
		Path:   path,
		Args:   DefaultWkhtmltopdfArgs,
		Logger: logger,
	}
}

// Render runs wkhtmltopdf.  It counts as a success only if a non-empty PDF comes out; a non-zero
// exit with a usable PDF (typically a missing remote image) is just logged.
func (w *Wkhtmltopdf) Render(ctx context.Context, htmlPath, pdfPath string) error {
	if err := os.MkdirAll(filepath.Dir(pdfPath), 0750); err != nil {
		return fmt.Errorf("localdump: couldn't create directory for %s: %w", pdfPath, err)
	}

	// A PDF left over from an earlier export would hide a failure.
	if err := os.Remove(pdfPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localdump: couldn't remove old %s: %w", pdfPath, err)
	}

	args := append(append([]string{}, w.Args...), htmlPath, pdfPath)
	out, runErr := exec.CommandContext(ctx, w.Path, args...).CombinedOutput()

	info, statErr := os.Stat(pdfPath)
	if statErr == nil && info.Size() > 0 {
		if runErr != nil {
			w.Logger.Printf("wkhtmltopdf complained about %s but produced a PDF: %v", htmlPath, runErr)
		}
		return nil
	}

	if runErr != nil {
		return fmt.Errorf("localdump: wkhtmltopdf failed on %s: %w: %s", htmlPath, runErr, strings.TrimSpace(string(out)))
	}
	return fmt.Errorf("localdump: wkhtmltopdf produced no output for %s", htmlPath)
}
