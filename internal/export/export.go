// Package export renders assessments as CSV, JSON and RevMan XML.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/utils"
)

// Supported formats.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatRevMan = "revman"
)

// ErrUnknownFormat is returned by Write for formats other than csv, json and revman.
var ErrUnknownFormat = errors.New("unsupported export format")

// Options carry optional study metadata and rendering switches.
type Options struct {
	Studies []models.Study
	// IncludeSignaling adds one column per signaling question to the CSV.
	IncludeSignaling bool
	Now              utils.Clock
}

func (o Options) studyMap() map[string]models.Study {
	out := make(map[string]models.Study, len(o.Studies))
	for _, s := range o.Studies {
		out[s.ID] = s
	}
	return out
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return utils.SystemClock()
	}
	return o.Now()
}

// Write renders assessments in format.
func Write(w io.Writer, format string, assessments []*models.Assessment, opts Options) error {
	switch strings.ToLower(format) {
	case FormatCSV:
		return WriteCSV(w, assessments, opts)
	case FormatJSON:
		return WriteJSON(w, assessments, opts)
	case FormatRevMan, "xml":
		return WriteRevMan(w, assessments, opts)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatRevMan, "xml":
		return "application/xml; charset=utf-8"
	default:
		return "application/json"
	}
}

// Table is a header plus rows of cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// SummaryTable builds one row per assessment: study metadata, overall label,
// status, one column per domain name (first-seen order), flagged count and
// verified "n/m".
func SummaryTable(assessments []*models.Assessment, studies []models.Study) Table {
	byID := Options{Studies: studies}.studyMap()
	domains := domainColumns(assessments)

	header := []string{"Study ID", "Study", "Authors", "Year", "Tool", "Overall Judgment", "Status"}
	header = append(header, domains...)
	header = append(header, "Flagged", "Verified")

	rows := make([][]string, 0, len(assessments))
	for _, a := range assessments {
		study, ok := byID[a.StudyID]
		row := []string{a.StudyID, studyLabel(a.StudyID, study, ok), firstAuthor(study, ok), yearOf(study, ok), string(a.ToolType), a.OverallJudgment.Label(), a.Status}
		labels := make(map[string]string, len(a.DomainJudgments))
		for _, dj := range a.DomainJudgments {
			labels[dj.DomainName] = dj.Judgment.Label()
		}
		for _, d := range domains {
			row = append(row, labels[d])
		}
		row = append(row,
			strconv.Itoa(a.FlaggedCount()),
			fmt.Sprintf("%d/%d", a.VerifiedCount(), len(a.DomainJudgments)))
		rows = append(rows, row)
	}
	return Table{Header: header, Rows: rows}
}

func domainColumns(assessments []*models.Assessment) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range assessments {
		for _, dj := range a.DomainJudgments {
			if _, ok := seen[dj.DomainName]; ok {
				continue
			}
			seen[dj.DomainName] = struct{}{}
			out = append(out, dj.DomainName)
		}
	}
	return out
}

func studyLabel(id string, study models.Study, ok bool) string {
	if ok && study.Title != "" {
		return truncateRunes(study.Title, 50)
	}
	return truncateRunes(id, 20)
}

func firstAuthor(study models.Study, ok bool) string {
	if !ok || strings.TrimSpace(study.Authors) == "" {
		return "Unknown"
	}
	return strings.TrimSpace(strings.Split(study.Authors, ",")[0])
}

func yearOf(study models.Study, ok bool) string {
	if !ok || study.Year == 0 {
		return ""
	}
	return strconv.Itoa(study.Year)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// RevManCode maps a judgment to RevMan's L/U/H scale. Unrecognised levels are U.
func RevManCode(j models.JudgmentLevel) string {
	switch j {
	case models.JudgmentLow:
		return "L"
	case models.JudgmentHigh, models.JudgmentSerious, models.JudgmentCritical:
		return "H"
	default:
		return "U"
	}
}
