// Package store translates decoded Push Port records into database
// operations and executes them through a single-writer queue, so every
// mutation reaches PostgreSQL in submission order on one connection.
package store

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
	"github.com/ironswallow/ironswallow/pkg/log"
)

// CorpusEntry is one location of the CORPUS extract, keyed by tiploc.
type CorpusEntry struct {
	Tiploc     string `json:"TIPLOC"`
	ThreeAlpha string `json:"3ALPHA"`
	NLCDesc    string `json:"NLCDESC"`
}

// Store turns decoded Push Port records into writer operations. It
// owns the reference snapshot the transformers read.
type Store struct {
	writer *Writer
	ref    atomic.Pointer[darwin.Reference]
	corpus map[string]CorpusEntry
	logger zerolog.Logger
}

// New creates a store in front of w.
func New(w *Writer) *Store {
	s := &Store{
		writer: w,
		corpus: make(map[string]CorpusEntry),
		logger: log.WithComponent("store"),
	}
	s.ref.Store(darwin.NewReference())
	return s
}

// Writer returns the writer all operations funnel through.
func (s *Store) Writer() *Writer {
	return s.writer
}

// Reference returns the current reference snapshot.
func (s *Store) Reference() *darwin.Reference {
	return s.ref.Load()
}

// SetReference swaps in a fresh reference snapshot.
func (s *Store) SetReference(ref *darwin.Reference) {
	s.ref.Store(ref)
}

// SetCorpus installs the CORPUS location index used when merging
// reference data.
func (s *Store) SetCorpus(entries []CorpusEntry) {
	corpus := make(map[string]CorpusEntry, len(entries))
	for _, e := range entries {
		corpus[e.Tiploc] = e
	}
	s.corpus = corpus
}

// MessageOps classifies one decoded document and returns the writer
// operations that fold it into the database. Unknown record tags are
// skipped.
func (s *Store) MessageOps(doc *xmlparse.Node) ([]Op, error) {
	if ref := darwin.TimetableRef(doc); ref != nil {
		return s.referenceOps(ref)
	}

	branch := darwin.UpdateBranch(doc)
	if branch == nil {
		return nil, nil
	}

	var ops []Op
	for _, record := range branch.List() {
		var (
			recOps []Op
			err    error
		)
		switch record.Tag() {
		case "schedule":
			recOps, err = s.scheduleOps(record)
		case "TS":
			recOps, err = s.statusOps(record)
		case "OW":
			recOps, err = s.messageOps(record)
		case "association":
			recOps, err = s.associationOps(record)
		case "deactivated":
			recOps = []Op{Single(
				"UPDATE darwin_schedules SET is_active=FALSE WHERE rid=$1;",
				record.Attr("rid"),
			)}
		default:
			// Not a record we ingest.
		}
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", record.Tag(), err)
		}
		ops = append(ops, recOps...)
	}
	return ops, nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// attrFlag reads a Darwin boolean attribute: absent and "false" are
// false, anything else is true.
func attrFlag(n *xmlparse.Node, key string) bool {
	v := n.Attr(key)
	return v != "" && v != "false"
}

// attrDefault reads an attribute with a fallback.
func attrDefault(n *xmlparse.Node, key, def string) string {
	if v := n.Attr(key); v != "" {
		return v
	}
	return def
}

// clockOf parses a time-of-day attribute.
func clockOf(n *xmlparse.Node, key string) (darwin.Clock, error) {
	return darwin.ParseClock(n.Attr(key))
}

// workingTimes parses the (wta, wtp, wtd) triplet of a node.
func workingTimes(n *xmlparse.Node) (wta, wtp, wtd darwin.Clock, err error) {
	if wta, err = clockOf(n, "wta"); err != nil {
		return
	}
	if wtp, err = clockOf(n, "wtp"); err != nil {
		return
	}
	wtd, err = clockOf(n, "wtd")
	return
}

// stripRight drops trailing spaces, mapping all-space to nil.
func stripRight(s string) *string {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return nil
	}
	return &s
}
