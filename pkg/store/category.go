package store

import (
	"context"
	"strings"

	"github.com/ironswallow/ironswallow/pkg/darwin"
)

// Location categories:
//
//	Z - orphaned location (excepting signals)
//	I - signal
//	G - signalbox
//	X - crossover
//	R - level crossing
//	D - siding
//	J - junction
//	L - loop
//	S - NR station (can be a station with buses/ferries!)
//	M - "metro" station (LT, TW, SJ, etc, but also heritage railways)
//	F - ferry terminal only
//	B - bus only

// knownTiplocsSQL collects every tiploc on the BPlan network or seen in
// a stored schedule; anything outside the set is a candidate orphan.
const knownTiplocsSQL = `SELECT origin FROM bplan_network_links
	UNION SELECT destination FROM bplan_network_links
	UNION SELECT tiploc FROM darwin_schedule_locations;`

func knownTiplocs(ctx context.Context, conn Conn) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, knownTiplocsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var tiploc string
		if err := rows.Scan(&tiploc); err != nil {
			return nil, err
		}
		known[tiploc] = struct{}{}
	}
	return known, rows.Err()
}

var metroOperators = map[string]bool{
	"TW": true, "SJ": true, "NY": true, "ZM": true, "PC": true, "y": true, "SP": true,
}

// categoryFor classifies a merged location. Names are matched against
// the CORPUS description, which carries the telling suffixes.
func categoryFor(loc darwin.Location, known map[string]struct{}) *string {
	corpus := strings.ToUpper(strOf(loc.NameCorpus))
	darwinName := strOf(loc.NameDarwin)
	operator := strOf(loc.Operator)
	tiploc := loc.Tiploc

	_, onNetwork := known[tiploc]
	numericTail := tiploc != "" && tiploc[len(tiploc)-1] >= '0' && tiploc[len(tiploc)-1] <= '9'

	switch {
	// Signals keep their numeric-tailed tiplocs out of the orphan rule:
	// they are not waypoints.
	case !onNetwork && !numericTail:
		return strPtr("Z")

	case operator == "ZB":
		return strPtr("B")
	case operator == "ZF":
		return strPtr("F")
	case metroOperators[operator]:
		return strPtr("M")
	// LT manages some stations with mainline services; only metro when
	// CORPUS marks the location as LT.
	case operator == "LT" && strings.HasSuffix(corpus, "LT"):
		return strPtr("M")

	// Bus tiplocs always end (but never start) in BUS.
	case strings.Contains(corpus, "BUS") && strings.HasSuffix(tiploc, "BUS"):
		return strPtr("B")
	case strings.Contains(corpus, "BUS") &&
		(strings.Contains(corpus, "STATION") || strings.Contains(corpus, "STN")) &&
		strings.HasSuffix(tiploc, "BS"):
		return strPtr("B")

	case operator != "" && loc.CRSDarwin != nil && darwinName != "":
		return strPtr("S")

	// Representative CORPUS example: WORK621 -> Worksop Signal Wp621.
	case (strings.Contains(corpus, "SIGNAL") || strings.Contains(corpus, "SIG")) && numericTail:
		return strPtr("I")
	case strings.HasSuffix(corpus, "SIGNAL") || strings.HasSuffix(corpus, "SIG"):
		return strPtr("I")
	case strings.Contains(corpus, "SIGNAL BOX") || strings.Contains(corpus, "SIGNALBOX"):
		return strPtr("G")
	case strings.Contains(corpus, "CROSSOVER") || strings.Contains(corpus, "XOVER"):
		return strPtr("X")
	case strings.Contains(corpus, "AHB") || strings.Contains(corpus, "LEVEL CROSSING"):
		return strPtr("R")
	case hasAnySuffix(corpus, "SDG", "SDGS", "SIDING", "SIDINGS"):
		return strPtr("D")
	case hasAnySuffix(corpus, "JN", "JUNCTION", "JCN"):
		return strPtr("J")
	case strings.HasSuffix(corpus, "LOOP"):
		return strPtr("L")
	}
	return nil
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func strOf(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
