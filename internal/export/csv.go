// Package export writes tables to files for downstream tooling.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/table"
)

// WriteCSV writes a header row then one record per table row. Nulls are
// empty cells.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	record := make([]string, t.Width())
	for i := 0; i < t.Len(); i++ {
		for j, v := range t.Values(i) {
			record[j] = v.Text()
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write csv row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}

// WriteCSVFile writes t to path, creating parent directories.
func WriteCSVFile(path string, t *table.Table) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteCSV(f, t)
}

// ReadCSV loads a table written by WriteCSV. Cells are typed the way the
// writer rendered them: empty is null, then int, then float, else string.
func ReadCSV(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	t := table.New(header...)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv line %d", line)
		}
		vals := make([]table.Value, len(rec))
		for i, cell := range rec {
			vals[i] = table.ParseText(cell)
		}
		if err := t.Append(vals...); err != nil {
			return nil, errors.Wrapf(err, "csv line %d", line)
		}
	}
}
