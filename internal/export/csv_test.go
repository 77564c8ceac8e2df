package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/diamond/internal/table"
)

func sample(t *testing.T) *table.Table {
	tbl := table.New("GameID", "Team", "OBP", "Note")
	require.NoError(t, tbl.Append(table.Int(7), table.String("New York Yankees"), table.Float(0.333), table.Null()))
	require.NoError(t, tbl.Append(table.Int(8), table.String("Jones, Adam"), table.Null(), table.String(`say "hi"`)))
	return tbl
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample(t)))

	want := strings.Join([]string{
		"GameID,Team,OBP,Note",
		"7,New York Yankees,0.333,",
		`8,"Jones, Adam",,"say ""hi"""`,
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestReadCSVRestoresValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample(t)))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.True(t, got.Equal(sample(t)))
}

func TestWriteCSVFileCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "2016", "games.csv")
	require.NoError(t, WriteCSVFile(path, sample(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "GameID,Team,OBP,Note\n"))
}

func TestReadCSVRejectsRaggedRows(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1\n"))
	require.Error(t, err)
}
