package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMarketsCSV(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "markets.csv")
	output := filepath.Join(dir, "out", "sports.csv")

	require.NoError(t, os.WriteFile(input, []byte(
		"market_id,category,question\n"+
			"1,Sports,\"Who wins, A or B?\"\n"+
			"2,Politics,Q2\n"+
			"3,esports,Q3\n"), 0o644))

	n, err := FilterMarketsCSV(input, output, " SPORTS ", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := readCSV(t, output)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"market_id", "category", "question"}, rows[0])
	assert.Equal(t, []string{"1", "Sports", "Who wins, A or B?"}, rows[1])
	assert.Equal(t, "3", rows[2][0])
}

func TestFilterMarketsCSV_NoCategoryColumn(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "markets.csv")
	require.NoError(t, os.WriteFile(input, []byte("market_id,question\n1,Q\n"), 0o644))

	n, err := FilterMarketsCSV(input, filepath.Join(dir, "out.csv"), "sports", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFilterMarketsCSV_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := FilterMarketsCSV(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "out.csv"), "x", zerolog.Nop())
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = FilterMarketsCSV(empty, filepath.Join(dir, "out.csv"), "x", zerolog.Nop())
	assert.True(t, errors.Is(err, ErrEmptyInput))
}
