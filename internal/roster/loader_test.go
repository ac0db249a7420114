package roster

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"crimesight-go/internal/types"
)

func writeRoster(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	for i, row := range rows {
		for j, cell := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", ref, cell))
		}
	}
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadDetectsColumnsByHeader(t *testing.T) {
	path := writeRoster(t, [][]string{
		{"subject_id", "full name", "notes"},
		{"VincentRomano", "Vincent Romano", "interrogated twice"},
		{"TommyBugati", "Tommy Bugati", ""},
	})

	subjects, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []types.Subject{
		{ID: "VincentRomano", Name: "Vincent Romano"},
		{ID: "TommyBugati", Name: "Tommy Bugati"},
	}, subjects)
}

func TestLoadSkipsInvalidIDs(t *testing.T) {
	path := writeRoster(t, [][]string{
		{"id", "name"},
		{"ElenaMoretti", "Elena Moretti"},
		{"9 not a token!", "Bad Row"},
		{"", "Blank Row"},
	})

	subjects, err := Load(path)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "ElenaMoretti", subjects[0].ID)
}

func TestLoadFallsBackToIDForMissingName(t *testing.T) {
	path := writeRoster(t, [][]string{
		{"subject"},
		{"VincentRomano"},
	})

	subjects, err := Load(path)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "VincentRomano", subjects[0].Name)
}

func TestLoadRejectsEmptySheets(t *testing.T) {
	path := writeRoster(t, [][]string{{"id", "name"}})
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultRosterIsValid(t *testing.T) {
	subjects := Default()
	require.NotEmpty(t, subjects)
	for _, s := range subjects {
		assert.NoError(t, types.ValidateSubjectID(s.ID))
	}
}
