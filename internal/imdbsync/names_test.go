package imdbsync

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deadonfilm/deadonfilm/internal/model"
	"github.com/deadonfilm/deadonfilm/internal/store"
)

// upsertStore records every UpsertSubjects call. The other Store methods
// are never reached by the syncer.
type upsertStore struct {
	store.Store
	batches  [][]model.Subject
	subjects []model.Subject
}

func (u *upsertStore) UpsertSubjects(_ context.Context, subjects []model.Subject) (int, error) {
	batch := make([]model.Subject, len(subjects))
	copy(batch, subjects)
	u.batches = append(u.batches, batch)
	u.subjects = append(u.subjects, batch...)
	return len(batch), nil
}

// gzipFetcher writes a fixed TSV payload, gzip-compressed, to the
// requested path.
type gzipFetcher struct {
	tsv string
	url string
}

func (g *gzipFetcher) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, nil
}

func (g *gzipFetcher) DownloadToFile(_ context.Context, url, path string) (int64, error) {
	g.url = url
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(g.tsv)); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	return int64(len(g.tsv)), nil
}

const sampleTSV = "nconst\tprimaryName\tbirthYear\tdeathYear\tprimaryProfession\tknownForTitles\n" +
	"nm0000148\tRaul Julia\t1940\t1994\tactor\ttt0105698\n" +
	"nm0000199\tAl Pacino\t1940\t\\N\tactor\ttt0068646\n" +
	"nm0001006\tJohn Candy\t1950\t1994\tactor,producer\ttt0095016\n" +
	"nm0000000\tNo Such Person\t\\N\t1990\t\\N\t\\N\n"

func TestParseNconst(t *testing.T) {
	assert.Equal(t, 148, parseNconst("nm0000148"))
	assert.Equal(t, 9999999, parseNconst("nm9999999"))
	assert.Equal(t, 42, parseNconst(" nm0000042 "))
	assert.Zero(t, parseNconst("tt0105698"))
	assert.Zero(t, parseNconst("nm"))
	assert.Zero(t, parseNconst(""))
}

func TestParseYear(t *testing.T) {
	assert.Equal(t, 1994, parseYear("1994"))
	assert.Equal(t, 1994, parseYear(" 1994 "))
	assert.Zero(t, parseYear(`\N`))
	assert.Zero(t, parseYear(""))
	assert.Zero(t, parseYear("junk"))
	assert.Zero(t, parseYear("999"), "below plausible range")
	assert.Zero(t, parseYear("3001"), "above plausible range")
}

func TestParseRow(t *testing.T) {
	colIdx := mapColumns([]string{"nconst", "primaryName", "birthYear", "deathYear"})

	subj, ok := parseRow([]string{"nm0000148", "Raul Julia", "1940", "1994"}, colIdx)
	require.True(t, ok)
	assert.Equal(t, model.Subject{PersonID: 148, Name: "Raul Julia", BirthYear: 1940, DeathYear: 1994}, subj)

	// still-living people are skipped
	_, ok = parseRow([]string{"nm0000199", "Al Pacino", "1940", `\N`}, colIdx)
	assert.False(t, ok)

	// unusable id
	_, ok = parseRow([]string{"nm0000000", "No Such Person", `\N`, "1990"}, colIdx)
	assert.False(t, ok)

	// missing name
	_, ok = parseRow([]string{"nm0000148", "  ", "1940", "1994"}, colIdx)
	assert.False(t, ok)

	// null birth year is fine
	subj, ok = parseRow([]string{"nm0001006", "John Candy", `\N`, "1994"}, colIdx)
	require.True(t, ok)
	assert.Zero(t, subj.BirthYear)
}

func TestLoad(t *testing.T) {
	st := &upsertStore{}
	s := New(st, nil, "")

	result, err := s.load(context.Background(), strings.NewReader(sampleTSV))
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.RowsScanned)
	assert.Equal(t, int64(2), result.RowsSynced)
	require.Len(t, st.subjects, 2)
	assert.Equal(t, "Raul Julia", st.subjects[0].Name)
	assert.Equal(t, "John Candy", st.subjects[1].Name)
}

func TestLoad_BatchFlush(t *testing.T) {
	var b strings.Builder
	b.WriteString("nconst\tprimaryName\tbirthYear\tdeathYear\n")
	for i := 1; i <= batchSize+3; i++ {
		fmt.Fprintf(&b, "nm%07d\tPerson %d\t1900\t1980\n", i, i)
	}

	st := &upsertStore{}
	s := New(st, nil, "")

	result, err := s.load(context.Background(), strings.NewReader(b.String()))
	require.NoError(t, err)

	assert.Equal(t, int64(batchSize+3), result.RowsSynced)
	require.Len(t, st.batches, 2)
	assert.Len(t, st.batches[0], batchSize)
	assert.Len(t, st.batches[1], 3)
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(&upsertStore{}, nil, "")
	_, err := s.load(ctx, strings.NewReader(sampleTSV))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSync(t *testing.T) {
	st := &upsertStore{}
	f := &gzipFetcher{tsv: sampleTSV}
	s := New(st, f, "")

	result, err := s.Sync(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultDatasetURL, f.url)
	assert.Equal(t, int64(2), result.RowsSynced)
	assert.Positive(t, result.Elapsed)
}

func TestNew_CustomURL(t *testing.T) {
	s := New(&upsertStore{}, nil, "https://example.com/name.basics.tsv.gz")
	assert.Equal(t, "https://example.com/name.basics.tsv.gz", s.url)
}
