package export

import (
	"encoding/csv"
	"io"

	"github.com/miradorstack/mirador-rob/internal/models"
)

// WriteCSV writes the summary table, optionally followed by signaling-question
// columns named "<domain>_<question id prefix>" with a "_quote" companion.
func WriteCSV(w io.Writer, assessments []*models.Assessment, opts Options) error {
	table := SummaryTable(assessments, opts.Studies)
	if opts.IncludeSignaling {
		table = withSignalingColumns(table, assessments)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(table.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func withSignalingColumns(table Table, assessments []*models.Assessment) Table {
	var columns []string
	seen := make(map[string]struct{})
	cells := make([]map[string]string, len(assessments))
	for i, a := range assessments {
		cells[i] = make(map[string]string)
		for _, dj := range a.DomainJudgments {
			for _, sr := range dj.SignalingResponses {
				col := dj.DomainName + "_" + truncateRunes(sr.QuestionID, 8)
				add := []string{col}
				cells[i][col] = sr.Response
				if sr.SupportingQuote != "" {
					cells[i][col+"_quote"] = sr.SupportingQuote
					add = append(add, col+"_quote")
				}
				for _, c := range add {
					if _, ok := seen[c]; !ok {
						seen[c] = struct{}{}
						columns = append(columns, c)
					}
				}
			}
		}
	}
	table.Header = append(table.Header, columns...)
	for i := range table.Rows {
		for _, c := range columns {
			table.Rows[i] = append(table.Rows[i], cells[i][c])
		}
	}
	return table
}
