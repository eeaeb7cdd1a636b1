package bulkapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"bulkload/internal/models"
)

// Per-record outcome columns the service prepends to every result row.
const (
	ColumnID      = "sf__Id"
	ColumnCreated = "sf__Created"
	ColumnError   = "sf__Error"
)

// ParseSuccessfulResults parses a successful-results CSV. An empty body yields an
// empty, non-nil slice.
func ParseSuccessfulResults(body []byte, delimiter rune) ([]models.SuccessRecord, error) {
	records := []models.SuccessRecord{}
	err := eachRow(body, delimiter, func(row map[string]string) error {
		id, ok := row[ColumnID]
		if !ok {
			return fmt.Errorf("missing %s column", ColumnID)
		}
		created := strings.EqualFold(row[ColumnCreated], "true")
		delete(row, ColumnID)
		delete(row, ColumnCreated)
		records = append(records, models.SuccessRecord{ID: id, Created: created, Fields: row})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse successful results: %w", err)
	}
	return records, nil
}

// ParseFailedResults parses a failed-results CSV. The error column has the shape
// "CODE:message"; both halves are kept alongside the raw value.
func ParseFailedResults(body []byte, delimiter rune) ([]models.FailureRecord, error) {
	records := []models.FailureRecord{}
	err := eachRow(body, delimiter, func(row map[string]string) error {
		raw, ok := row[ColumnError]
		if !ok {
			return fmt.Errorf("missing %s column", ColumnError)
		}
		code, msg := splitError(raw)
		rec := models.FailureRecord{ID: row[ColumnID], Error: raw, ErrorCode: code, Message: msg}
		delete(row, ColumnID)
		delete(row, ColumnError)
		rec.Fields = row
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse failed results: %w", err)
	}
	return records, nil
}

func eachRow(body []byte, delimiter rune, fn func(map[string]string) error) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = delimiter
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	for line := 2; ; line++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(fields) != len(header) {
			return fmt.Errorf("row %d has %d fields, header has %d", line, len(fields), len(header))
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			row[h] = fields[i]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

func splitError(raw string) (string, string) {
	code, msg, ok := strings.Cut(raw, ":")
	if !ok {
		return "", raw
	}
	msg = strings.TrimSuffix(strings.TrimSpace(msg), ":--")
	return strings.TrimSpace(code), msg
}
