package importer

import (
	"strconv"
	"strings"

	"github.com/trezcool/schoolsaas/core"
)

// Row is a normalized data row.
type Row struct {
	Index     int // spreadsheet row number; the header is row 1
	School    string
	Class     string
	Subject   string
	Teacher   string
	FirstName string
	LastName  string
	Gender    string
	Score     int
	ScoreRaw  string
	// ScoreMissing is set when the score cell is blank or not a whole number.
	ScoreMissing bool
}

// normalizeRow trims & title-cases the name fields, capitalizes the gender and parses the score.
func normalizeRow(idx columnIndex, raw []string, index int) Row {
	row := Row{
		Index:     index,
		School:    core.TitleCase(idx.cell(raw, ColSchool)),
		Class:     core.TitleCase(idx.cell(raw, ColClass)),
		Subject:   core.TitleCase(idx.cell(raw, ColSubject)),
		Teacher:   core.TitleCase(idx.cell(raw, ColTeacher)),
		FirstName: core.TitleCase(idx.cell(raw, ColFirstName)),
		LastName:  core.TitleCase(idx.cell(raw, ColLastName)),
		Gender:    core.Capitalize(idx.cell(raw, ColGender)),
		ScoreRaw:  strings.TrimSpace(idx.cell(raw, ColScore)),
	}

	score, err := strconv.Atoi(row.ScoreRaw)
	if err != nil {
		row.ScoreMissing = true
		return row
	}
	row.Score = score
	return row
}
