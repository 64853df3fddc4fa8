package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// loadCSV returns one document per non-empty cell of the configured
// column, up to CSVLimit rows. The header row is required.
func loadCSV(path string, opts Options) ([]Document, error) {
	column := opts.CSVColumn
	if column == "" {
		column = DefaultCSVColumn
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, readError(path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, corruptCSV(path, err)
	}

	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")), column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidInput,
			fmt.Sprintf("column %q not found in %s", column, path), nil).
			WithDetail("columns", strings.Join(header, ",")).
			WithSuggestion("set ingest.csv_column or pass --csv-column")
	}

	var docs []Document
	for row := 1; opts.CSVLimit <= 0 || row <= opts.CSVLimit; row++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, corruptCSV(path, err)
		}
		if col >= len(record) || strings.TrimSpace(record[col]) == "" {
			continue
		}
		docs = append(docs, Document{
			Text: record[col],
			Meta: map[string]string{"source": path, "row": strconv.Itoa(row)},
		})
	}
	return docs, nil
}

func corruptCSV(path string, err error) error {
	return ragerrors.New(ragerrors.ErrCodeFileCorrupt, fmt.Sprintf("malformed CSV: %s", path), err)
}
