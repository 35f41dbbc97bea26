// Package csvimport turns an uploaded CSV file into book payloads for bulk
// creation.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alextreichler/libreserve/internal/models"
)

// Columns lists the required header names after normalization.
var Columns = []string{"title", "author", "isbn", "publisher", "availableamount", "coverpicture"}

var ErrTooShort = errors.New("CSV file must have at least a header and one data row")

// Rejection describes a data row that was not accepted.
type Rejection struct {
	Line   int
	Reason string
}

type Result struct {
	Books    []models.BookInput
	Rejected []Rejection
}

// MissingColumnsError is returned when the header lacks required columns.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "Missing required columns: " + strings.Join(e.Columns, ", ")
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(h)
	h = strings.ReplaceAll(h, `"`, "")
	return strings.Join(strings.Fields(h), "")
}

// Parse reads the whole file. Only structural problems with the file itself
// are returned as errors; bad data rows end up in Result.Rejected.
func Parse(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return Result{}, ErrTooShort
	}
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	var missing []string
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Result{}, &MissingColumnsError{Columns: missing}
	}

	res := Result{Books: []models.BookInput{}}
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err == nil && blank(record) {
			continue
		}
		rows++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Rejected = append(res.Rejected, Rejection{Line: perr.StartLine, Reason: "malformed row"})
				continue
			}
			return Result{}, fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) != len(header) {
			res.Rejected = append(res.Rejected, Rejection{Line: line, Reason: "malformed row"})
			continue
		}

		field := func(col string) string {
			return strings.TrimSpace(record[index[col]])
		}
		book := models.BookInput{
			Title:           field("title"),
			Author:          field("author"),
			ISBN:            field("isbn"),
			Publisher:       field("publisher"),
			AvailableAmount: parseAmount(field("availableamount")),
			CoverPicture:    field("coverpicture"),
		}
		if reason := MissingField(book); reason != "" {
			res.Rejected = append(res.Rejected, Rejection{Line: line, Reason: reason})
			continue
		}
		res.Books = append(res.Books, book)
	}
	if rows == 0 {
		return Result{}, ErrTooShort
	}
	return res, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// parseAmount mirrors a lenient integer parse: a leading integer is used,
// anything else (including 0 and negatives) falls back to a single copy.
func parseAmount(s string) int {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// MissingField names the empty required fields of b, or returns "" when
// the book is complete.
func MissingField(b models.BookInput) string {
	var missing []string
	if b.Title == "" {
		missing = append(missing, "title")
	}
	if b.Author == "" {
		missing = append(missing, "author")
	}
	if b.ISBN == "" {
		missing = append(missing, "isbn")
	}
	if b.Publisher == "" {
		missing = append(missing, "publisher")
	}
	if b.CoverPicture == "" {
		missing = append(missing, "coverpicture")
	}
	if len(missing) == 0 {
		return ""
	}
	return "missing required field: " + strings.Join(missing, ", ")
}
