package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ricesearch/disaster-response/internal/pkg/errors"
)

// ReadMessagesCSV reads the messages table. It expects "id" and "message"
// header columns; other columns are ignored.
func ReadMessagesCSV(r io.Reader) ([]RawMessage, error) {
	rows, cols, err := readTable(r, "id", "message")
	if err != nil {
		return nil, err
	}

	out := make([]RawMessage, 0, len(rows))
	for i, row := range rows {
		id, err := parseID(row[cols[0]], i+2)
		if err != nil {
			return nil, err
		}
		out = append(out, RawMessage{ID: id, Text: row[cols[1]]})
	}
	return out, nil
}

// ReadCategoriesCSV reads the categories table. It expects "id" and
// "categories" header columns.
func ReadCategoriesCSV(r io.Reader) ([]RawCategoryRecord, error) {
	rows, cols, err := readTable(r, "id", "categories")
	if err != nil {
		return nil, err
	}

	out := make([]RawCategoryRecord, 0, len(rows))
	for i, row := range rows {
		id, err := parseID(row[cols[0]], i+2)
		if err != nil {
			return nil, err
		}
		out = append(out, RawCategoryRecord{ID: id, Encoded: strings.TrimSpace(row[cols[1]])})
	}
	return out, nil
}

// readTable reads all records and resolves the header index of each wanted
// column. Rows too short to hold every wanted column are rejected.
func readTable(r io.Reader, want ...string) ([][]string, []int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeSchema, "reading csv", err)
	}
	if len(records) == 0 {
		return nil, nil, errors.SchemaError("empty csv")
	}

	cols := make([]int, len(want))
	maxCol := 0
	for i, name := range want {
		cols[i] = findColumn(records[0], name)
		if cols[i] == -1 {
			return nil, nil, errors.SchemaError(fmt.Sprintf("csv must contain a %q header column", name))
		}
		if cols[i] > maxCol {
			maxCol = cols[i]
		}
	}

	rows := records[1:]
	for i, row := range rows {
		if len(row) <= maxCol {
			return nil, nil, errors.SchemaError(fmt.Sprintf("csv line %d has %d fields, need at least %d", i+2, len(row), maxCol+1))
		}
	}

	return rows, cols, nil
}

func findColumn(header []string, name string) int {
	for i, h := range header {
		// Strip a UTF-8 BOM left by spreadsheet exports.
		h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

func parseID(s string, line int) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.SchemaError(fmt.Sprintf("csv line %d: id %q is not an integer", line, s))
	}
	return id, nil
}
