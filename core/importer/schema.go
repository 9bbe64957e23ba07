package importer

import (
	"strings"

	"github.com/trezcool/schoolsaas/core"
)

// Required columns
const (
	ColSchool    = "School"
	ColClass     = "Class"
	ColSubject   = "Subject"
	ColTeacher   = "Teacher"
	ColFirstName = "Student First Name"
	ColLastName  = "Student Last Name"
	ColGender    = "Gender"
	ColScore     = "Score"
)

var RequiredColumns = []string{
	ColSchool, ColClass, ColSubject, ColTeacher, ColFirstName, ColLastName, ColGender, ColScore,
}

// columnIndex maps each required column to its position in the header row.
type columnIndex map[string]int

// newColumnIndex normalizes the header row (trim + title-case) and locates the required columns.
// Extra columns are ignored; the first occurrence of a duplicated column wins.
func newColumnIndex(header []string) (columnIndex, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := core.TitleCase(h)
		if _, ok := positions[name]; !ok && name != "" {
			positions[name] = i
		}
	}

	idx := make(columnIndex, len(RequiredColumns))
	var missing []string
	for _, col := range RequiredColumns {
		pos, ok := positions[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		idx[col] = pos
	}
	if len(missing) > 0 {
		return nil, &MissingColumnError{Columns: missing}
	}
	return idx, nil
}

// cell returns the raw value of `col` in `row`; short rows have blank trailing cells.
func (idx columnIndex) cell(row []string, col string) string {
	pos, ok := idx[col]
	if !ok || pos >= len(row) {
		return ""
	}
	return row[pos]
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
