// Package bplan imports the Network Rail BPlan extract: network links
// between timing points, platform details, and localisable reference
// codes. The extract is a Windows-1252 tab-separated file.
package bplan

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/store"
)

const (
	insertNetworkLinkSQL = `INSERT INTO bplan_network_links
		(origin,destination,running_line_code,running_line_desc,start_date,end_date,initial_direction,final_direction,
		distance,doo_passenger,doo_non_passenger,retb,zone,reversible,power,route_allowance)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) ON CONFLICT DO NOTHING;`

	insertPlatformSQL = `INSERT INTO bplan_platforms
		(tiploc,platform,start_date,end_date,length,power,doo_passenger,doo_non_passenger)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT DO NOTHING;`

	upsertReferenceSQL = `INSERT INTO localised_references (source,locale,code_type,code,description)
		VALUES ($1,$2,$3,$4,$5) ON CONFLICT (source,locale,code_type,code)
		DO UPDATE SET description=EXCLUDED.description;`
)

// bplanDate handles the extract's "DD-MM-YYYY HH:MM:SS" stamps. Some
// carry a time of 23:59:59 meaning the following day.
func bplanDate(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("02-01-2006 15:04:05", s)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t.Add(time.Second).Truncate(24 * time.Hour), nil
}

func yes(s string) bool {
	return s == "Y"
}

func intOrNil(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("bad number %q: %w", s, err)
	}
	return n, nil
}

// Import reads datasets/bplan.txt and submits the three batches
// through the writer: NWK rows, PLT rows, then REF rows. Call Sync on
// the writer to wait for completion.
func Import(dir string, w *store.Writer) error {
	logger := log.WithComponent("bplan")
	path := filepath.Join(dir, "bplan.txt")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening bplan extract: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(charmap.Windows1252.NewDecoder().Reader(f))
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		links     [][]any
		platforms [][]any
		refs      [][]any
	)

	logger.Info().Str("path", path).Msg("collecting BPlan")
	for {
		line, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading bplan extract: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		switch line[0] {
		case "NWK":
			if len(line) < 19 {
				continue
			}
			row, err := networkLinkRow(line)
			if err != nil {
				return err
			}
			links = append(links, row)

		case "PLT":
			if len(line) < 10 {
				continue
			}
			row, err := platformRow(line)
			if err != nil {
				return err
			}
			platforms = append(platforms, row)

		case "REF":
			if len(line) < 5 {
				continue
			}
			codeType, code, description := line[2], line[3], line[4]
			if codeType == "ACT" {
				if len(description) > 52 {
					description = description[:52]
				}
				description = strings.TrimRight(description, " ")
			}
			refs = append(refs, []any{"BPLAN", "en_gb", codeType, code, description})
		}
	}

	logger.Info().
		Int("network_links", len(links)).
		Int("platforms", len(platforms)).
		Int("references", len(refs)).
		Msg("merging BPlan")

	w.Submit(
		store.Batch(insertNetworkLinkSQL, links),
		store.Batch(insertPlatformSQL, platforms),
		store.Batch(upsertReferenceSQL, refs),
	)
	return nil
}

// NWK: action, origin, destination, running line code/desc, dates,
// directions, distance, DOO flags, RETB, zone, reversible, power,
// route availability, max train length.
func networkLinkRow(line []string) ([]any, error) {
	startDate, err := bplanDate(line[6])
	if err != nil {
		return nil, err
	}
	endDate, err := bplanDate(line[7])
	if err != nil {
		return nil, err
	}
	distance, err := intOrNil(line[10])
	if err != nil {
		return nil, err
	}

	return []any{
		line[2], line[3],
		strings.TrimRight(line[4], " "), nullableStr(line[5]),
		startDate, endDate,
		line[8], line[9],
		distance,
		yes(line[11]), yes(line[12]), yes(line[13]),
		line[14], line[15], line[16], line[17],
	}, nil
}

// PLT: action, tiploc, platform, dates, length, power, DOO flags.
func platformRow(line []string) ([]any, error) {
	startDate, err := bplanDate(line[4])
	if err != nil {
		return nil, err
	}
	endDate, err := bplanDate(line[5])
	if err != nil {
		return nil, err
	}
	length, err := intOrNil(line[6])
	if err != nil {
		return nil, err
	}

	platform := strings.TrimRight(line[3], " ")
	return []any{
		line[2], nullableStr(platform),
		startDate, endDate,
		length, line[7],
		yes(line[8]), yes(line[9]),
	}, nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
