package export

import (
	"encoding/xml"
	"io"
	"time"

	"github.com/miradorstack/mirador-rob/internal/models"
)

type revmanDocument struct {
	XMLName    xml.Name      `xml:"RISK_OF_BIAS"`
	ExportDate string        `xml:"EXPORT_DATE"`
	Studies    []revmanStudy `xml:"STUDY"`
}

type revmanStudy struct {
	ID    string       `xml:"ID,attr"`
	Name  string       `xml:"NAME"`
	Items []revmanItem `xml:"ITEM"`
}

type revmanItem struct {
	Domain      string `xml:"DOMAIN,attr"`
	Judgment    string `xml:"JUDGMENT"`
	Description string `xml:"DESCRIPTION"`
}

// WriteRevMan writes the simplified RevMan risk of bias XML document.
func WriteRevMan(w io.Writer, assessments []*models.Assessment, opts Options) error {
	byID := opts.studyMap()
	doc := revmanDocument{ExportDate: opts.now().Format(time.RFC3339)}
	for _, a := range assessments {
		name := a.StudyID
		if study, ok := byID[a.StudyID]; ok && study.Title != "" {
			name = study.Title
		}
		s := revmanStudy{ID: a.StudyID, Name: name}
		for _, dj := range a.DomainJudgments {
			s.Items = append(s.Items, revmanItem{
				Domain:      dj.DomainName,
				Judgment:    RevManCode(dj.Judgment),
				Description: dj.Rationale,
			})
		}
		doc.Studies = append(doc.Studies, s)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
