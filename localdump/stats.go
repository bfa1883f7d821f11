package localdump

// Stats are the run totals.  Page-level counters say what happened to a candidate as a whole;
// the HTML and PDF counters say what happened to each artifact.
type Stats struct {
	TotalFromAPI int `yaml:"total_pages_from_api"`

	Processed int `yaml:"processed"`
	Skipped   int `yaml:"skipped"`
	Failed    int `yaml:"failed"`

	HTMLProcessed int `yaml:"html_processed"`
	HTMLSkipped   int `yaml:"html_skipped"`
	HTMLFailed    int `yaml:"html_failed"`

	PDFProcessed int `yaml:"pdf_processed"`
	PDFSkipped   int `yaml:"pdf_skipped"`
	PDFFailed    int `yaml:"pdf_failed"`
}

// Outcome is what ExportPage did with one page.
type Outcome int8

const (
	Skipped Outcome = iota
	Exported
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Exported:
		return "exported"
	case Failed:
		return "failed"
	default:
		return "skipped"
	}
}

// count folds a page outcome into the page-level counters.
func (s *Stats) count(o Outcome) {
	switch o {
	case Exported:
		s.Processed++
	case Failed:
		s.Failed++
	default:
		s.Skipped++
	}
}
