package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/metrics"
)

// Conn is the slice of pgx.Conn the writer and tasks need. The live
// ingester passes one *pgx.Conn; tests pass a fake.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Mode selects how the writer executes an operation.
type Mode int

const (
	// ModeSingle executes the statement once with its args.
	ModeSingle Mode = iota
	// ModeBatch executes the statement once per parameter tuple.
	ModeBatch
	// ModeRetain executes a query and pushes the fetched rows onto the
	// retain stack.
	ModeRetain
	// ModeUseRetain pops the retain stack and batches the statement
	// over the popped rows.
	ModeUseRetain
	// ModeTask runs a function against the connection, serialized with
	// every other operation.
	ModeTask

	modeBarrier
)

// TaskFunc is a two-step operation (typically SELECT-then-mutate) run
// inside the writer.
type TaskFunc func(ctx context.Context, conn Conn) error

// Op is one unit of work for the writer.
type Op struct {
	Mode  Mode
	SQL   string
	Args  []any
	Batch [][]any
	Task  TaskFunc

	done chan error
}

// Single builds a one-shot statement.
func Single(sql string, args ...any) Op {
	return Op{Mode: ModeSingle, SQL: sql, Args: args}
}

// Batch builds a repeated statement over parameter tuples.
func Batch(sql string, batch [][]any) Op {
	return Op{Mode: ModeBatch, SQL: sql, Batch: batch}
}

// Retain builds a query whose rows are pushed onto the retain stack.
func Retain(sql string, args ...any) Op {
	return Op{Mode: ModeRetain, SQL: sql, Args: args}
}

// UseRetain builds a batch fed from the top of the retain stack.
func UseRetain(sql string) Op {
	return Op{Mode: ModeUseRetain, SQL: sql}
}

// Task builds a function operation.
func Task(fn TaskFunc) Op {
	return Op{Mode: ModeTask, Task: fn}
}

// QueueCapacity bounds the writer queue; producers block when full.
const QueueCapacity = 1000

// Writer serializes every mutating database operation through a single
// connection. Submission order is execution order. A failed statement
// rolls the open transaction back and poisons the queue until the next
// Sync barrier, whose caller receives the error.
type Writer struct {
	conn     Conn
	ops      chan Op
	depth    atomic.Int64
	retained [][][]any
	err      error
	inTx     bool
	wg       sync.WaitGroup
	txMu     sync.Mutex
}

// NewWriter creates a writer over conn.
func NewWriter(conn Conn) *Writer {
	return &Writer{
		conn: conn,
		ops:  make(chan Op, QueueCapacity),
	}
}

// Start begins the consumer goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Close stops accepting work, drains the queue and joins the consumer.
func (w *Writer) Close() {
	close(w.ops)
	w.wg.Wait()
}

// Submit enqueues operations in order, blocking while the queue is
// full.
func (w *Writer) Submit(ops ...Op) {
	for _, op := range ops {
		w.depth.Add(1)
		metrics.WriterQueueDepth.Set(float64(w.depth.Load()))
		w.ops <- op
	}
}

// Sync waits until every previously submitted operation has executed
// and returns the first error since the last barrier.
func (w *Writer) Sync(ctx context.Context) error {
	done := make(chan error, 1)
	w.Submit(Op{Mode: modeBarrier, done: done})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transaction wraps ops in BEGIN/COMMIT, submits them as one
// contiguous unit and waits for the result. Concurrent callers are
// serialized so their transactions never interleave on the shared
// connection.
func (w *Writer) Transaction(ctx context.Context, ops ...Op) error {
	w.txMu.Lock()
	defer w.txMu.Unlock()

	w.Submit(Single("BEGIN;"))
	w.Submit(ops...)
	w.Submit(Single("COMMIT;"))
	return w.Sync(ctx)
}

// Depth reports the number of queued operations.
func (w *Writer) Depth() int64 {
	return w.depth.Load()
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()
	logger := log.WithComponent("writer")

	for op := range w.ops {
		w.depth.Add(-1)
		metrics.WriterQueueDepth.Set(float64(w.depth.Load()))

		if op.Mode == modeBarrier {
			op.done <- w.err
			w.err = nil
			continue
		}
		if w.err != nil {
			// Poisoned until the next barrier acknowledges the abort.
			continue
		}

		if err := w.apply(ctx, op); err != nil {
			logger.Error().Err(err).Str("sql", op.SQL).Msg("statement failed, aborting transaction")
			metrics.TransactionAborts.Inc()
			if w.inTx {
				if _, rbErr := w.conn.Exec(ctx, "ROLLBACK;"); rbErr != nil {
					logger.Error().Err(rbErr).Msg("rollback failed")
				}
				w.inTx = false
			}
			w.err = err
			continue
		}

		// Transaction boundaries travel through the queue as plain
		// statements; track them so an abort only rolls back when a
		// transaction is actually open.
		if op.Mode == ModeSingle {
			switch op.SQL {
			case "BEGIN;":
				w.inTx = true
			case "COMMIT;", "ROLLBACK;":
				w.inTx = false
			}
		}
	}
}

func (w *Writer) apply(ctx context.Context, op Op) error {
	switch op.Mode {
	case ModeSingle:
		metrics.StatementsTotal.WithLabelValues("single").Inc()
		_, err := w.conn.Exec(ctx, op.SQL, op.Args...)
		return err

	case ModeBatch:
		for _, args := range op.Batch {
			metrics.StatementsTotal.WithLabelValues("batch").Inc()
			if _, err := w.conn.Exec(ctx, op.SQL, args...); err != nil {
				return err
			}
		}
		return nil

	case ModeRetain:
		metrics.StatementsTotal.WithLabelValues("retain").Inc()
		rows, err := w.conn.Query(ctx, op.SQL, op.Args...)
		if err != nil {
			return err
		}
		var fetched [][]any
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				rows.Close()
				return err
			}
			fetched = append(fetched, values)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		w.retained = append(w.retained, fetched)
		return nil

	case ModeUseRetain:
		if len(w.retained) == 0 {
			return nil
		}
		batch := w.retained[len(w.retained)-1]
		w.retained = w.retained[:len(w.retained)-1]
		for _, args := range batch {
			metrics.StatementsTotal.WithLabelValues("use-retain").Inc()
			if _, err := w.conn.Exec(ctx, op.SQL, args...); err != nil {
				return err
			}
		}
		return nil

	case ModeTask:
		metrics.StatementsTotal.WithLabelValues("task").Inc()
		return op.Task(ctx, w.conn)
	}
	return nil
}
