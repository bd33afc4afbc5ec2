// Package ingest wires the feed, store and bootstrap together and
// supervises the lifecycle of a live run.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ironswallow/ironswallow/pkg/bootstrap"
	"github.com/ironswallow/ironswallow/pkg/config"
	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/feed"
	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/refdata"
	"github.com/ironswallow/ironswallow/pkg/store"
)

// staleAfter is how old the last received frame may be before a
// snapshot bootstrap replaces the live tables.
const staleAfter = 5 * time.Minute

// refreshEvery is the reference-data and metadata refresh interval.
const refreshEvery = 12 * time.Hour

// queueWarnDepth is the writer backlog above which the monitor logs.
const queueWarnDepth = 500

// Supervisor owns the full ingest lifecycle: reference data, snapshot
// bootstrap, the live subscription, and the periodic refresh loop.
type Supervisor struct {
	cfg    *config.Config
	writer *store.Writer
	store  *store.Store
	logger zerolog.Logger
}

// New builds a supervisor from cfg.
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		logger: log.WithComponent("ingest"),
	}
}

// Run executes the ingest lifecycle until ctx is cancelled. The
// startup order matters: reference data first (transformers need the
// location snapshot), then the bootstrap decision, then the live
// subscription.
func (s *Supervisor) Run(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, s.cfg.DatabaseString)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(context.Background())

	s.writer = store.NewWriter(conn)
	s.writer.Start(ctx)
	defer s.writer.Close()

	s.store = store.New(s.writer)

	if err := s.loadCorpus(); err != nil {
		return err
	}
	if err := s.refreshReference(ctx); err != nil {
		return err
	}

	stale, err := s.lastFrameStale(ctx)
	if err != nil {
		return err
	}
	if stale && !s.cfg.NoFromFTP {
		s.logger.Info().Msg("last retrieval too old, replaying FTP snapshots")
		b := bootstrap.New(bootstrap.Config{
			Hostname:     s.cfg.FTPHostname,
			Username:     s.cfg.FTPUsername,
			Password:     s.cfg.FTPPassword,
			SnapshotOnly: s.cfg.SnapshotOnly,
		}, s.store)
		if err := b.Run(ctx); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.monitorQueue(ctx)
	}()
	go func() {
		defer wg.Done()
		s.refreshLoop(ctx)
	}()

	if s.cfg.NoListenSTOMP {
		s.logger.Info().Msg("live subscription disabled")
		<-ctx.Done()
		wg.Wait()
		return nil
	}

	sub := feed.NewSubscriber(feed.Config{
		Hostname:    s.cfg.Hostname,
		Username:    s.cfg.Username,
		Password:    s.cfg.Password,
		ClientID:    s.cfg.ClientID,
		Destination: s.cfg.Subscribe,
		Identifier:  s.cfg.Identifier,
		Heartbeat:   s.cfg.Heartbeat,
	}, s.frameHandler())

	err = sub.Run(ctx)
	wg.Wait()
	return err
}

// frameHandler builds the per-frame pipeline: decode, transform,
// apply inside one transaction, record the sequence number. The frame
// is only acknowledged once the transaction has committed.
func (s *Supervisor) frameHandler() feed.Handler {
	parser := darwin.NewParser()
	return func(ctx context.Context, body []byte, sequence string) error {
		doc, err := darwin.ParseFrame(parser, body)
		if err != nil {
			return feed.Permanent(fmt.Errorf("decoding frame: %w", err))
		}
		ops, err := s.store.MessageOps(doc)
		if err != nil {
			return feed.Permanent(fmt.Errorf("transforming frame: %w", err))
		}

		if sequence != "" {
			seqOps, err := store.SequenceOps(sequence, time.Now())
			if err != nil {
				s.logger.Warn().Str("sequence", sequence).Msg("unparseable sequence header")
			} else {
				ops = append(ops, seqOps...)
			}
		}
		return s.writer.Transaction(ctx, ops...)
	}
}

// loadCorpus installs the CORPUS location index.
func (s *Supervisor) loadCorpus() error {
	entries, err := refdata.LoadCorpus(s.cfg.DatasetsDir)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}
	s.store.SetCorpus(entries)
	s.logger.Info().Int("locations", len(entries)).Msg("corpus loaded")
	return nil
}

// refreshReference fetches the timetable reference file and applies it
// through the writer.
func (s *Supervisor) refreshReference(ctx context.Context) error {
	client, err := refdata.NewClient(ctx, refdata.Config{
		AccessKey: s.cfg.S3Access,
		SecretKey: s.cfg.S3Secret,
		Bucket:    s.cfg.S3Bucket,
		Region:    s.cfg.S3Region,
	})
	if err != nil {
		return err
	}
	doc, err := client.FetchTimetableRef(ctx)
	if err != nil {
		return fmt.Errorf("fetching reference data: %w", err)
	}
	ops, err := s.store.MessageOps(doc)
	if err != nil {
		return fmt.Errorf("transforming reference data: %w", err)
	}

	return s.writer.Transaction(ctx, ops...)
}

// lastFrameStale reports whether the stored sequence stamp is absent
// or too old to resume from the live feed alone.
func (s *Supervisor) lastFrameStale(ctx context.Context) (bool, error) {
	var acquired time.Time
	s.writer.Submit(store.Task(func(ctx context.Context, conn store.Conn) error {
		var err error
		acquired, err = store.LastRetrieved(ctx, conn)
		return err
	}))
	if err := s.writer.Sync(ctx); err != nil {
		return false, fmt.Errorf("reading last sequence stamp: %w", err)
	}
	return acquired.IsZero() || time.Since(acquired) > staleAfter, nil
}

// monitorQueue logs when the writer backlog grows past the warning
// threshold.
func (s *Supervisor) monitorQueue(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth := s.writer.Depth(); depth > queueWarnDepth {
				s.logger.Warn().Int64("depth", depth).Msg("writer queue backlog")
			}
		}
	}
}

// refreshLoop rebuilds schedule metadata immediately, then refreshes
// reference data and rebuilds again every cycle.
func (s *Supervisor) refreshLoop(ctx context.Context) {
	s.renewMeta(ctx)

	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refreshReference(ctx); err != nil {
				s.logger.Error().Err(err).Msg("reference refresh failed")
			}
			s.renewMeta(ctx)
		}
	}
}

func (s *Supervisor) renewMeta(ctx context.Context) {
	if err := s.writer.Transaction(ctx, store.Task(s.store.RenewScheduleMeta)); err != nil {
		s.logger.Error().Err(err).Msg("schedule metadata rebuild failed")
	}
}
