package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Recipient is one row of a recipient list.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

var (
	nameColumns  = []string{"name", "Name", "NAME"}
	emailColumns = []string{"email", "Email", "EMAIL"}
)

// Parse reads a comma separated recipient list from r. An input with only a
// header (or nothing at all) yields an empty, non-nil slice.
func Parse(r io.Reader) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []Recipient{}, nil
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		if _, seen := index[col]; !seen {
			index[col] = i
		}
	}

	recipients := []Recipient{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if isBlank(record) {
			continue
		}

		rcpt := Recipient{
			Name:  firstValue(record, index, nameColumns),
			Email: strings.TrimSpace(firstValue(record, index, emailColumns)),
		}
		if !strings.Contains(rcpt.Email, "@") {
			continue
		}
		recipients = append(recipients, rcpt)
	}
	return recipients, nil
}

// firstValue returns the first non-empty cell among the given column names.
func firstValue(record []string, index map[string]int, columns []string) string {
	for _, col := range columns {
		i, ok := index[col]
		if !ok || i >= len(record) {
			continue
		}
		if v := record[i]; v != "" {
			return v
		}
	}
	return ""
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
