package store

import (
	"context"
	"strconv"
	"time"

	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/metrics"
)

// sequenceModulus is the wrap point of the Push Port SequenceNumber
// header.
const sequenceModulus = 10_000_000

const (
	selectSequenceSQL = "SELECT sequence FROM last_received_sequence;"

	upsertSequenceSQL = `INSERT INTO last_received_sequence VALUES (0, $1, $2)
		ON CONFLICT (id)
		DO UPDATE SET sequence=EXCLUDED.sequence, time_acquired=EXCLUDED.time_acquired;`
)

// SequenceOps records a frame's sequence number, first checking for a
// gap against the stored one. Gaps are logged and counted but never
// fatal: the feed occasionally skips.
func SequenceOps(sequence string, received time.Time) ([]Op, error) {
	incoming, err := strconv.Atoi(sequence)
	if err != nil {
		return nil, err
	}

	return []Op{
		Task(func(ctx context.Context, conn Conn) error {
			last, ok, err := storedSequence(ctx, conn)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if gap := (incoming - last + sequenceModulus) % sequenceModulus; gap > 5 {
				logger := log.WithComponent("sequence")
				logger.Warn().
					Int("last", last).Int("incoming", incoming).Int("gap", gap).
					Msg("sequence gap exceeds limit")
				metrics.SequenceGapsTotal.Inc()
			}
			return nil
		}),
		Single(upsertSequenceSQL, incoming, received.UTC()),
	}, nil
}

func storedSequence(ctx context.Context, conn Conn) (int, bool, error) {
	rows, err := conn.Query(ctx, selectSequenceSQL)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, false, rows.Err()
	}
	var last int
	if err := rows.Scan(&last); err != nil {
		return 0, false, err
	}
	return last, true, rows.Err()
}

// LastRetrieved reports when the last frame was recorded. A zero time
// and no error means nothing has ever been received.
func LastRetrieved(ctx context.Context, conn Conn) (time.Time, error) {
	rows, err := conn.Query(ctx, "SELECT time_acquired FROM last_received_sequence;")
	if err != nil {
		return time.Time{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return time.Time{}, rows.Err()
	}
	var acquired time.Time
	if err := rows.Scan(&acquired); err != nil {
		return time.Time{}, err
	}
	return acquired, rows.Err()
}
