// Package imdbsync refreshes the subjects table from the IMDb name.basics
// dataset, keeping only people with a recorded death year.
package imdbsync

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deadonfilm/deadonfilm/internal/fetcher"
	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

const (
	// DefaultDatasetURL is the daily IMDb name dump.
	DefaultDatasetURL = "https://datasets.imdbws.com/name.basics.tsv.gz"

	batchSize = 5000
)

// Result summarizes one sync.
type Result struct {
	RowsScanned int64
	RowsSynced  int64
	Elapsed     time.Duration
}

// Syncer downloads and loads the dataset.
type Syncer struct {
	store   store.Store
	fetcher fetcher.Fetcher
	url     string
}

// New creates a Syncer. url falls back to DefaultDatasetURL when empty.
func New(st store.Store, f fetcher.Fetcher, url string) *Syncer {
	if url == "" {
		url = DefaultDatasetURL
	}
	return &Syncer{store: st, fetcher: f, url: url}
}

// Sync downloads name.basics.tsv.gz into tempDir and upserts every row
// with a death year. Identity columns are refreshed; death details and
// enrichment timestamps on existing subjects are left alone.
func (s *Syncer) Sync(ctx context.Context, tempDir string) (*Result, error) {
	log := zap.L().With(zap.String("dataset", "name.basics"))
	start := time.Now()

	gzPath := filepath.Join(tempDir, "name.basics.tsv.gz")
	log.Info("imdbsync: downloading", zap.String("url", s.url))
	if _, err := s.fetcher.DownloadToFile(ctx, s.url, gzPath); err != nil {
		return nil, eris.Wrap(err, "imdbsync: download")
	}
	defer os.Remove(gzPath)

	f, err := os.Open(gzPath)
	if err != nil {
		return nil, eris.Wrap(err, "imdbsync: open download")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, eris.Wrap(err, "imdbsync: gzip reader")
	}
	defer gz.Close()

	result, err := s.load(ctx, gz)
	if err != nil {
		return nil, err
	}
	result.Elapsed = time.Since(start)

	log.Info("imdbsync: done",
		zap.Int64("rows_scanned", result.RowsScanned),
		zap.Int64("rows_synced", result.RowsSynced),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (s *Syncer) load(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	// The dump has no quoting at all; some names contain stray quotes.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "imdbsync: read header")
	}
	colIdx := mapColumns(header)

	result := &Result{}
	var batch []model.Subject

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		result.RowsScanned++

		subj, ok := parseRow(record, colIdx)
		if !ok {
			continue
		}
		batch = append(batch, subj)

		if len(batch) >= batchSize {
			n, err := s.store.UpsertSubjects(ctx, batch)
			if err != nil {
				return nil, eris.Wrap(err, "imdbsync: upsert batch")
			}
			result.RowsSynced += int64(n)
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		n, err := s.store.UpsertSubjects(ctx, batch)
		if err != nil {
			return nil, eris.Wrap(err, "imdbsync: upsert final batch")
		}
		result.RowsSynced += int64(n)
	}

	return result, nil
}

// parseRow keeps only rows with a usable person id, name, and death year.
func parseRow(record []string, colIdx map[string]int) (model.Subject, bool) {
	deathYear := parseYear(getCol(record, colIdx, "deathyear"))
	if deathYear == 0 {
		return model.Subject{}, false
	}

	personID := parseNconst(getCol(record, colIdx, "nconst"))
	name := strings.TrimSpace(getCol(record, colIdx, "primaryname"))
	if personID == 0 || name == "" {
		return model.Subject{}, false
	}

	return model.Subject{
		PersonID:  personID,
		Name:      name,
		BirthYear: parseYear(getCol(record, colIdx, "birthyear")),
		DeathYear: deathYear,
	}, true
}

// parseNconst converts an IMDb name id like "nm0000148" to its numeric part.
func parseNconst(s string) int {
	s = strings.TrimPrefix(strings.TrimSpace(s), "nm")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseYear returns 0 for the dataset's \N null marker or junk values.
func parseYear(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == `\N` {
		return 0
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 1000 || y > 3000 {
		return 0
	}
	return y
}

// mapColumns builds a case-insensitive column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol gets a column value by name, returning empty string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}
