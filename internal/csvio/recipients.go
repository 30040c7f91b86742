package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/certforge/certforge/internal/domain"
)

// ParseResult reports which rows were accepted and which were skipped.
type ParseResult struct {
	Recipients []domain.Recipient
	Skipped    int
}

// ParseRecipients reads a CSV with a header row containing at least Name and
// Email columns (case-insensitive, any order). Rows failing validation are
// skipped rather than failing the whole upload. Every valid row becomes a
// recipient, duplicate emails included: one input row, one record.
func ParseRecipients(r io.Reader) (ParseResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return ParseResult{}, fmt.Errorf("%w: csv file is empty", domain.ErrValidation)
	}
	if err != nil {
		return ParseResult{}, fmt.Errorf("%w: failed to read csv header: %v", domain.ErrValidation, err)
	}

	nameIdx, emailIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "name":
			nameIdx = i
		case "email":
			emailIdx = i
		}
	}
	if nameIdx < 0 || emailIdx < 0 {
		return ParseResult{}, fmt.Errorf("%w: csv header must contain Name and Email columns", domain.ErrValidation)
	}

	result := ParseResult{}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}
		if nameIdx >= len(record) || emailIdx >= len(record) {
			result.Skipped++
			continue
		}

		recipient := domain.Recipient{
			Name:  record[nameIdx],
			Email: record[emailIdx],
		}
		recipient.Normalize()

		if err := recipient.Validate(); err != nil {
			result.Skipped++
			continue
		}

		result.Recipients = append(result.Recipients, recipient)
	}

	if len(result.Recipients) == 0 {
		return ParseResult{}, fmt.Errorf("%w: csv contains no valid recipients", domain.ErrValidation)
	}

	return result, nil
}
