// Package bootstrap rebuilds the database from the Push Port FTP
// snapshots. The feed only carries a day or so of history, so a cold
// start (or a long outage) replays the full snapshot plus the queued
// pushport files before live subscription resumes.
package bootstrap

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/metrics"
	"github.com/ironswallow/ironswallow/pkg/store"
)

const (
	maxAttempts  = 30
	parseWorkers = 8

	// Snapshot lines can run to several megabytes of XML.
	maxLineBytes = 64 << 20
)

const truncateSQL = "TRUNCATE TABLE darwin_schedule_locations,darwin_schedule_status,darwin_associations,darwin_schedules,darwin_messages;"

// Config carries the FTP coordinates of the snapshot server.
type Config struct {
	Hostname     string
	Username     string
	Password     string
	SnapshotOnly bool
}

// Bootstrapper downloads and replays the snapshot files through the
// store's writer.
type Bootstrapper struct {
	cfg    Config
	store  *store.Store
	logger zerolog.Logger
}

// New builds a bootstrapper over st.
func New(cfg Config, st *store.Store) *Bootstrapper {
	return &Bootstrapper{
		cfg:    cfg,
		store:  st,
		logger: log.WithComponent("bootstrap"),
	}
}

// Run fetches the snapshot files and replays them inside a single
// transaction: schedule triggers off, live tables truncated, every
// frame applied in order, triggers back on, commit. Everything funnels
// through the writer so live and bootstrap writes never interleave.
func (b *Bootstrapper) Run(ctx context.Context) error {
	files, err := b.fetch(ctx)
	if err != nil {
		return err
	}
	defer func() {
		for _, f := range files {
			f.handle.Close()
			os.Remove(f.handle.Name())
		}
	}()

	b.logger.Info().Int("files", len(files)).Msg("purging database")
	w := b.store.Writer()
	w.Submit(
		store.Single("BEGIN;"),
		store.Single("ALTER TABLE darwin_schedules DISABLE TRIGGER USER;"),
		store.Single(truncateSQL),
		store.Single("ALTER TABLE darwin_schedules ENABLE TRIGGER USER;"),
	)

	for _, f := range files {
		b.logger.Info().Str("file", f.name).Msg("applying retrieved file")
		if err := b.apply(ctx, f); err != nil {
			w.Submit(store.Single("ROLLBACK;"))
			w.Sync(ctx)
			return fmt.Errorf("applying %s: %w", f.name, err)
		}
		metrics.BootstrapFilesTotal.Inc()
	}

	w.Submit(store.Single("COMMIT;"))
	if err := w.Sync(ctx); err != nil {
		return fmt.Errorf("bootstrap transaction failed: %w", err)
	}
	b.logger.Info().Msg("bootstrap complete")
	return nil
}

type snapshotFile struct {
	name   string
	handle *os.File
}

// fetch lists the snapshot and pushport directories and streams every
// file to local temporaries, retrying the whole session on failure.
func (b *Bootstrapper) fetch(ctx context.Context) ([]snapshotFile, error) {
	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		b.logger.Info().Int("attempt", n).Str("hostname", b.cfg.Hostname).Msg("connecting to FTP")

		files, err := b.fetchOnce(ctx)
		if err == nil {
			return files, nil
		}
		lastErr = err

		backoff := retryBackoff(n)
		b.logger.Error().Err(err).Dur("backoff", backoff).Msg("FTP session failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("FTP connection attempts exhausted: %w", lastErr)
}

func (b *Bootstrapper) fetchOnce(ctx context.Context) ([]snapshotFile, error) {
	conn, err := ftp.Dial(b.cfg.Hostname, ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	if err := conn.Login(b.cfg.Username, b.cfg.Password); err != nil {
		return nil, err
	}

	names, err := conn.NameList("snapshot")
	if err != nil {
		return nil, err
	}
	if b.cfg.SnapshotOnly && len(names) > 1 {
		names = names[:1]
	}
	if !b.cfg.SnapshotOnly {
		queued, err := conn.NameList("pushport")
		if err != nil {
			return nil, err
		}
		names = append(names, queued...)
	}

	var files []snapshotFile
	cleanup := func() {
		for _, f := range files {
			f.handle.Close()
			os.Remove(f.handle.Name())
		}
	}

	for _, name := range names {
		b.logger.Info().Str("file", name).Msg("retrieving")
		resp, err := conn.Retr(name)
		if err != nil {
			cleanup()
			return nil, err
		}

		tmp, err := os.CreateTemp("", "ironswallow-snapshot-*")
		if err != nil {
			resp.Close()
			cleanup()
			return nil, err
		}
		if _, err := tmp.ReadFrom(resp); err != nil {
			resp.Close()
			tmp.Close()
			os.Remove(tmp.Name())
			cleanup()
			return nil, err
		}
		resp.Close()
		if _, err := tmp.Seek(0, 0); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			cleanup()
			return nil, err
		}
		files = append(files, snapshotFile{name: name, handle: tmp})
	}
	return files, nil
}

type parseResult struct {
	doc *xmlparse.Node
	err error
}

type parseJob struct {
	line []byte
	out  chan parseResult
}

// apply replays one gzipped file of newline-delimited frames. Lines
// are parsed by a fixed worker pool but applied strictly in file
// order; a line that fails to parse is logged and skipped.
func (b *Bootstrapper) apply(ctx context.Context, f snapshotFile) error {
	gz, err := gzip.NewReader(f.handle)
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.name, err)
	}
	defer gz.Close()

	jobs := make(chan parseJob)
	order := make(chan chan parseResult, parseWorkers*2)

	for i := 0; i < parseWorkers; i++ {
		go func() {
			parser := darwin.NewParser()
			for job := range jobs {
				doc, err := darwin.ParseFrame(parser, job.line)
				job.out <- parseResult{doc: doc, err: err}
			}
		}()
	}

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- func() error {
			defer close(jobs)
			defer close(order)

			scanner := bufio.NewScanner(gz)
			scanner.Buffer(make([]byte, 1<<20), maxLineBytes)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				// The job goes out before its slot in the order
				// channel: every queued slot then has a worker
				// feeding it, so the consumer never blocks on a
				// result that was never dispatched.
				out := make(chan parseResult, 1)
				select {
				case jobs <- parseJob{line: []byte(line), out: out}:
				case <-ctx.Done():
					return ctx.Err()
				}
				select {
				case order <- out:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return scanner.Err()
		}()
	}()

	w := b.store.Writer()
	index := 0
	for out := range order {
		res := <-out
		index++

		if res.err != nil {
			b.logger.Error().Err(res.err).Str("file", f.name).Int("line", index).Msg("skipping unparseable frame")
			metrics.BootstrapFramesTotal.WithLabelValues("parse_error").Inc()
			continue
		}
		ops, err := b.store.MessageOps(res.doc)
		if err != nil {
			b.logger.Error().Err(err).Str("file", f.name).Int("line", index).Msg("skipping untransformable frame")
			metrics.BootstrapFramesTotal.WithLabelValues("transform_error").Inc()
			continue
		}
		w.Submit(ops...)
		metrics.BootstrapFramesTotal.WithLabelValues("ok").Inc()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return <-scanErr
}

// retryBackoff grows quadratically, clamped to [10s, 600s].
func retryBackoff(n int) time.Duration {
	seconds := n * n
	if seconds < 10 {
		seconds = 10
	}
	if seconds > 600 {
		seconds = 600
	}
	return time.Duration(seconds) * time.Second
}
