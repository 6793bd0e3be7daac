// Package ingest loads the movie dataset into an overlay.
//
// The CSV header must name an id and a title column; release_date and
// every other column are kept as record attributes. Rows are split into
// chunks that are parsed concurrently, then inserted one by one so the
// overlay sees a single writer.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"

	"golang.org/x/sync/errgroup"
)

const (
	ColumnID          = "id"
	ColumnTitle       = "title"
	ColumnReleaseDate = "release_date"
)

// Putter is the part of the overlay the loader writes through.
type Putter interface {
	Put(ctx context.Context, key string, rec domain.Record) (domain.Node, error)
}

// Movie is one parsed row: the title used as key and the record stored
// under it.
type Movie struct {
	Title  string
	Record domain.Record
}

// Stats summarises one load.
type Stats struct {
	Rows     int
	Loaded   int
	Skipped  int
	Chunks   int
	Duration time.Duration
}

type Loader struct {
	lgr       logger.Logger
	batchSize int
	workers   int
}

type Option func(*Loader)

func WithLogger(l logger.Logger) Option {
	return func(ld *Loader) {
		ld.lgr = l
	}
}

// WithBatchSize sets how many rows one parse task handles.
func WithBatchSize(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.batchSize = n
		}
	}
}

// WithWorkers bounds how many chunks are parsed at once.
func WithWorkers(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.workers = n
		}
	}
}

func NewLoader(opts ...Option) *Loader {
	ld := &Loader{
		lgr:       &logger.NopLogger{},
		batchSize: 50000,
		workers:   4,
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// header maps column names to positions.
type header struct {
	names []string
	id    int
	title int
}

func parseHeader(row []string) (header, error) {
	h := header{names: make([]string, len(row)), id: -1, title: -1}
	for i, name := range row {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		h.names[i] = name
		switch name {
		case ColumnID:
			h.id = i
		case ColumnTitle:
			h.title = i
		}
	}
	if h.id < 0 || h.title < 0 {
		return header{}, fmt.Errorf("csv header must contain %q and %q columns, got %v", ColumnID, ColumnTitle, h.names)
	}
	return h, nil
}

// Parse reads the whole CSV and returns its movies in file order. Rows
// with an empty title are skipped and counted.
func (ld *Loader) Parse(ctx context.Context, r io.Reader) ([]Movie, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("csv: empty input")
	}
	if err != nil {
		return nil, 0, fmt.Errorf("csv header: %w", err)
	}
	h, err := parseHeader(first)
	if err != nil {
		return nil, 0, err
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("csv rows: %w", err)
	}

	chunks := make([][]Movie, (len(rows)+ld.batchSize-1)/ld.batchSize)
	skipped := make([]int, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ld.workers)
	for c := range chunks {
		start := c * ld.batchSize
		end := min(start+ld.batchSize, len(rows))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunks[c], skipped[c] = h.parseChunk(rows[start:end])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	movies := make([]Movie, 0, len(rows))
	total := 0
	for c := range chunks {
		movies = append(movies, chunks[c]...)
		total += skipped[c]
	}
	ld.lgr.Debug("ingest: parsed",
		logger.F("rows", len(rows)),
		logger.F("chunks", len(chunks)),
		logger.F("skipped", total))
	return movies, total, nil
}

func (h header) parseChunk(rows [][]string) ([]Movie, int) {
	out := make([]Movie, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		if h.title >= len(row) || strings.TrimSpace(row[h.title]) == "" {
			skipped++
			continue
		}
		attrs := make(map[string]string, len(row))
		id := ""
		for i, v := range row {
			if i >= len(h.names) {
				break
			}
			if i == h.id {
				id = strings.TrimSpace(v)
				continue
			}
			attrs[h.names[i]] = v
		}
		out = append(out, Movie{
			Title:  row[h.title],
			Record: domain.Record{ID: id, Attrs: attrs},
		})
	}
	return out, skipped
}

// Load parses r and puts every movie into dst.
func (ld *Loader) Load(ctx context.Context, r io.Reader, dst Putter) (Stats, error) {
	start := time.Now()
	movies, skipped, err := ld.Parse(ctx, r)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Rows:    len(movies) + skipped,
		Skipped: skipped,
		Chunks:  (len(movies) + skipped + ld.batchSize - 1) / ld.batchSize,
	}
	for _, m := range movies {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if _, err := dst.Put(ctx, m.Title, m.Record); err != nil {
			if errors.Is(err, domain.ErrInvalidKey) {
				st.Skipped++
				continue
			}
			return st, fmt.Errorf("put %q: %w", m.Title, err)
		}
		st.Loaded++
	}
	st.Duration = time.Since(start)

	ld.lgr.Info("ingest: dataset loaded",
		logger.F("rows", st.Rows),
		logger.F("loaded", st.Loaded),
		logger.F("skipped", st.Skipped),
		logger.F("duration", st.Duration.String()))
	return st, nil
}

// LoadFile opens path and loads it into dst.
func (ld *Loader) LoadFile(ctx context.Context, path string, dst Putter) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ld.Load(ctx, f, dst)
}
