// Package roster loads the catalog of subjects the web layer offers for
// investigation.
package roster

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"crimesight-go/internal/types"
)

// Default is the built-in demo roster used when no spreadsheet is
// configured.
func Default() []types.Subject {
	return []types.Subject{
		{ID: "VincentRomano", Name: "Vincent Romano"},
		{ID: "TommyBugati", Name: "Tommy Bugati"},
		{ID: "ElenaMoretti", Name: "Elena Moretti"},
	}
}

// Load reads subjects from the first sheet of a spreadsheet,
// auto-detecting the id and name columns by header heuristics. Rows
// with an invalid subject id are skipped.
func Load(path string) ([]types.Subject, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	header := rows[0]
	idIdx := -1
	nameIdx := -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case idIdx == -1 && (strings.Contains(l, "id") || strings.Contains(l, "subject")):
			idIdx = i
		case nameIdx == -1 && strings.Contains(l, "name"):
			nameIdx = i
		}
	}
	if idIdx == -1 {
		idIdx = 0
	}

	var subjects []types.Subject
	for _, row := range rows[1:] {
		if idIdx >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idIdx])
		if id == "" || types.ValidateSubjectID(id) != nil {
			continue
		}
		name := id
		if nameIdx >= 0 && nameIdx < len(row) && strings.TrimSpace(row[nameIdx]) != "" {
			name = strings.TrimSpace(row[nameIdx])
		}
		subjects = append(subjects, types.Subject{ID: id, Name: name})
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("no usable subject rows")
	}
	return subjects, nil
}
