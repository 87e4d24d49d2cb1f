package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

// ErrEmptyInput is returned when the input CSV has no header row.
var ErrEmptyInput = errors.New("input csv is empty or malformed")

// FilterMarketsCSV copies the header and every row of input whose category
// column contains category (case-insensitive) to output. It returns the
// number of rows written.
func FilterMarketsCSV(input, output, category string, logger zerolog.Logger) (int, error) {
	in, err := os.Open(input)
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return 0, ErrEmptyInput
	}
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}

	col := slices.Index(header, "category")
	if col < 0 {
		logger.Warn().Str("input", input).Msg("Input CSV has no category column, no rows will match")
	}

	target := strings.ToLower(strings.TrimSpace(category))
	var kept [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read row: %w", err)
		}
		if col >= 0 && col < len(row) && strings.Contains(strings.ToLower(row[col]), target) {
			kept = append(kept, row)
		}
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write(header)
	_ = w.WriteAll(kept)
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("encode output: %w", err)
	}

	if err := writeFile(output, []byte(sb.String())); err != nil {
		return 0, err
	}

	logger.Info().Str("output", output).Str("category", category).Int("rows", len(kept)).Msg("Markets filtered")
	return len(kept), nil
}
