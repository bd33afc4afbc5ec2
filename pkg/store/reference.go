package store

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
	"github.com/ironswallow/ironswallow/pkg/metrics"
)

const (
	upsertLocationSQL = `INSERT INTO darwin_locations VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tiploc) DO UPDATE SET
		(crs_darwin, crs_corpus, operator, name_short, name_full, category, dict)=
		(EXCLUDED.crs_darwin, EXCLUDED.crs_corpus, EXCLUDED.operator, EXCLUDED.name_short, EXCLUDED.name_full, EXCLUDED.category, EXCLUDED.dict);`

	upsertOperatorSQL = `INSERT INTO darwin_operators VALUES ($1, $2, $3) ON CONFLICT (operator)
		DO UPDATE SET (operator_name, url)=(EXCLUDED.operator_name, EXCLUDED.url);`

	upsertReasonSQL = `INSERT INTO darwin_reasons VALUES ($1, $2, $3) ON CONFLICT (id, type) DO UPDATE
		SET (type, message)=(EXCLUDED.type, EXCLUDED.message);`
)

// referenceOps folds a PportTimetableRef document in: locations merged
// with CORPUS, operators, and reason texts. The in-memory reference
// snapshot is swapped in behind the row upserts so lookups and the
// stored rows stay consistent.
func (s *Store) referenceOps(doc *xmlparse.Node) ([]Op, error) {
	next := darwin.NewReference()
	for tiploc, loc := range s.Reference().Locations {
		next.Locations[tiploc] = loc
	}
	for key, text := range s.Reference().Reasons {
		next.Reasons[key] = text
	}

	caser := cases.Title(language.BritishEnglish)
	var (
		locations []darwin.Location
		operators [][]any
		reasons   [][]any
	)

	for _, record := range doc.List() {
		switch record.Tag() {
		case "LocationRef":
			locations = append(locations, s.mergeLocation(record, caser))

		case "TocRef":
			operators = append(operators, []any{
				record.Attr("toc"), record.Attr("tocname"), nullable(record.Attr("url")),
			})

		case "CancellationReasons", "LateRunningReasons":
			typ := "D"
			if record.Tag() == "CancellationReasons" {
				typ = "C"
			}
			for _, reason := range record.List() {
				if reason.Tag() != "Reason" {
					continue
				}
				code, text := reason.Attr("code"), reason.Attr("reasontext")
				reasons = append(reasons, []any{code, typ, text})
				next.Reasons[darwin.ReasonKey{Code: code, Type: typ}] = text
			}
		}
	}

	s.logger.Info().
		Int("locations", len(locations)).
		Int("operators", len(operators)).
		Int("reasons", len(reasons)).
		Msg("applying timetable reference")

	// Category classification needs the network and observed tiploc
	// sets, so the location upserts run as a task against the writer
	// connection rather than a prepared batch.
	locationsTask := Task(func(ctx context.Context, conn Conn) error {
		known, err := knownTiplocs(ctx, conn)
		if err != nil {
			return err
		}
		for _, loc := range locations {
			loc.Category = categoryFor(loc, known)
			dict, err := json.Marshal(loc)
			if err != nil {
				return err
			}
			if _, err := conn.Exec(ctx, upsertLocationSQL,
				loc.Tiploc, loc.CRSDarwin, loc.CRSCorpus, loc.Operator,
				loc.NameShort, loc.NameFull, loc.Category, dict); err != nil {
				return err
			}
			next.Locations[loc.Tiploc] = loc
		}
		return nil
	})

	return []Op{
		locationsTask,
		Batch(upsertOperatorSQL, operators),
		Batch(upsertReasonSQL, reasons),
		Task(func(ctx context.Context, conn Conn) error {
			s.SetReference(next)
			metrics.ReferenceRefreshes.Inc()
			metrics.ReferenceLocations.Set(float64(len(next.Locations)))
			return nil
		}),
	}, nil
}

// mergeLocation joins one LocationRef with its CORPUS entry. Darwin
// names equal to the bare tiploc are treated as absent; CORPUS names
// win for the full name, Darwin names for nothing CORPUS covers.
func (s *Store) mergeLocation(record *xmlparse.Node, caser cases.Caser) darwin.Location {
	tiploc := record.Attr("tpl")
	entry := s.corpus[tiploc]

	loc := darwin.Location{
		Tiploc:    tiploc,
		CRSDarwin: strPtr(record.Attr("crs")),
		CRSCorpus: stripRight(entry.ThreeAlpha),
		Operator:  strPtr(record.Attr("toc")),
	}
	if name := record.Attr("locname"); name != "" && name != tiploc {
		loc.NameDarwin = &name
	}

	if raw := stripRight(entry.NLCDesc); raw != nil {
		cased := titleCase(*raw, caser)
		expanded := expandName(cased)
		loc.NameCorpus = &cased
		loc.NameShort = &cased
		loc.NameFull = &expanded
	} else {
		loc.NameShort = loc.NameDarwin
		loc.NameFull = loc.NameDarwin
	}
	return loc
}

// titleCase title-cases each space-separated word, keeping a leading
// parenthesis attached to its word.
func titleCase(s string, caser cases.Caser) string {
	words := strings.Split(s, " ")
	for i, word := range words {
		if strings.HasPrefix(word, "(") && len(word) > 1 {
			words[i] = "(" + caser.String(word[1:])
		} else {
			words[i] = caser.String(word)
		}
	}
	return strings.Join(words, " ")
}

// corpusExpansions undoes the worst of the CORPUS abbreviations.
var corpusExpansions = [][2]string{
	{"Jcn", "Junction"},
	{"Jn", "Junction"},
	{"Rd", "Road"},
	{" (Tps Indic. Only)", ""},
	{"Intl", "International"},
	{"Internat'nl", "International"},
	{"Hl", "High Level"},
	{"Lt", "LT"},
}

func expandName(s string) string {
	for _, pair := range corpusExpansions {
		s = strings.ReplaceAll(s, pair[0], pair[1])
	}
	return s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
