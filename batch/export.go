package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// MIMEType is the content type of exported results
const MIMEType = "text/csv"

// ErrNoResults means no row has a response yet, so there is nothing
// worth exporting
var ErrNoResults = errors.New("no responses to export")

// DefaultFilename returns the timestamped export filename,
// vision-results-<unix-epoch-millis>.csv
func DefaultFilename() string {
	return fmt.Sprintf("vision-results-%d.csv", time.Now().UnixMilli())
}

// ExportCSV writes the table as UTF-8 CSV with a "File Name,Response"
// header, one record per row in table order. Fields containing commas,
// quotes or newlines get standard RFC 4180 quoting. Output is
// byte-identical for an unchanged table.
func ExportCSV(t *Table, w io.Writer) error {
	if !t.HasResponses() {
		return ErrNoResults
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"File Name", "Response"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		if err := cw.Write([]string{row.FileName, row.Response}); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFile writes the table as CSV to the given path
func ExportFile(t *Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	if err := ExportCSV(t, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
