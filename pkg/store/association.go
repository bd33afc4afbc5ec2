package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
	"github.com/ironswallow/ironswallow/pkg/log"
)

const (
	insertAssociationSQL = `INSERT INTO darwin_associations
		(category,tiploc,main_rid,main_original_wt,assoc_rid,assoc_original_wt) SELECT $1,$2,$3,$4,$5,$6 WHERE
		EXISTS (SELECT * FROM darwin_schedule_locations WHERE tiploc=$7 AND rid=$8 AND original_wt=$9) AND
		EXISTS (SELECT * FROM darwin_schedule_locations WHERE tiploc=$10 AND rid=$11 AND original_wt=$12) ON CONFLICT(tiploc,main_rid,assoc_rid) DO NOTHING;`

	selectAssociationPairSQL = `SELECT a.category,a.tiploc,s1.rid,s1.origins,s1.destinations,s2.rid,s2.origins,s2.destinations
		FROM darwin_associations AS a
		INNER JOIN darwin_schedules AS s1 on s1.rid=a.main_rid
		INNER JOIN darwin_schedules AS s2 on s2.rid=a.assoc_rid
		WHERE a.category!='NP' AND main_rid=$1 AND assoc_rid=$2;`

	selectAssociationAllSQL = `SELECT a.category,a.tiploc,s1.rid,s1.origins,s1.destinations,s2.rid,s2.origins,s2.destinations
		FROM darwin_associations AS a
		INNER JOIN darwin_schedules AS s1 on s1.rid=a.main_rid
		INNER JOIN darwin_schedules AS s2 on s2.rid=a.assoc_rid
		WHERE a.category!='NP';`

	appendDestinationsSQL = "UPDATE darwin_schedules SET destinations=darwin_schedules.destinations || $1::json[] WHERE rid=$2;"
	appendOriginsSQL      = "UPDATE darwin_schedules SET origins=darwin_schedules.origins || $1::json[] WHERE rid=$2;"
)

// associationOps writes one inter-service association. Joins ("JJ")
// are inverted and stored as "JN" so every association points at the
// next service. The insert only lands when both referenced call points
// exist; orphans are silently suppressed.
func (s *Store) associationOps(record *xmlparse.Node) ([]Op, error) {
	category := record.Attr("category")
	tiploc := record.Attr("tiploc")

	main := record.Child("main")
	assoc := record.Child("assoc")
	if main == nil || assoc == nil {
		return nil, fmt.Errorf("association at %s missing a side", tiploc)
	}

	mainWT, err := sideOriginalWT(main)
	if err != nil {
		return nil, err
	}
	assocWT, err := sideOriginalWT(assoc)
	if err != nil {
		return nil, err
	}

	mainRid := main.Attr("rid")
	assocRid := assoc.Attr("rid")

	// Stored orientation: JJ swaps sides and becomes JN.
	storedCat, sMainRid, sMainWT, sAssocRid, sAssocWT := category, mainRid, mainWT, assocRid, assocWT
	if category == "JJ" {
		storedCat = "JN"
		sMainRid, sMainWT = assocRid, assocWT
		sAssocRid, sAssocWT = mainRid, mainWT
	}

	ops := []Op{
		Single(insertAssociationSQL,
			storedCat, tiploc, sMainRid, sMainWT, sAssocRid, sAssocWT,
			tiploc, sMainRid, sMainWT,
			tiploc, sAssocRid, sAssocWT,
		),
		Task(func(ctx context.Context, conn Conn) error {
			return RenewAssociationMeta(ctx, conn, sMainRid, sAssocRid)
		}),
	}
	return ops, nil
}

func sideOriginalWT(side *xmlparse.Node) (string, error) {
	wta, wtp, wtd, err := workingTimes(side)
	if err != nil {
		return "", fmt.Errorf("association side %s: %w", side.Attr("rid"), err)
	}
	return darwin.OriginalWT(wta, wtp, wtd), nil
}

type associationRow struct {
	category     string
	tiploc       string
	mainRid      string
	mainOrigins  []darwin.Endpoint
	mainDests    []darwin.Endpoint
	assocRid     string
	assocOrigins []darwin.Endpoint
	assocDests   []darwin.Endpoint
}

// RenewAssociationMeta propagates origin/destination metadata across
// associations: for every non-NP link the far side's destinations are
// appended to the main service (and symmetrically origins to the
// associated service) unless an entry for that (tiploc, category) pair
// is already present. Pass empty rids to replay over every link.
func RenewAssociationMeta(ctx context.Context, conn Conn, mainRid, assocRid string) error {
	var (
		sql  string
		args []any
	)
	if mainRid != "" && assocRid != "" {
		sql, args = selectAssociationPairSQL, []any{mainRid, assocRid}
	} else {
		sql = selectAssociationAllSQL
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("association meta query failed: %w", err)
	}

	var links []associationRow
	for rows.Next() {
		var (
			link                                     associationRow
			mainOrig, mainDest, assocOrig, assocDest [][]byte
		)
		if err := rows.Scan(&link.category, &link.tiploc,
			&link.mainRid, &mainOrig, &mainDest,
			&link.assocRid, &assocOrig, &assocDest); err != nil {
			rows.Close()
			return err
		}
		if link.mainOrigins, err = decodeEndpoints(mainOrig); err != nil {
			rows.Close()
			return err
		}
		if link.mainDests, err = decodeEndpoints(mainDest); err != nil {
			rows.Close()
			return err
		}
		if link.assocOrigins, err = decodeEndpoints(assocOrig); err != nil {
			rows.Close()
			return err
		}
		if link.assocDests, err = decodeEndpoints(assocDest); err != nil {
			rows.Close()
			return err
		}
		links = append(links, link)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	logger := log.WithComponent("associations")
	for _, link := range links {
		annotatedDests := annotate(link.assocDests, link.tiploc, link.category)
		annotatedOrigins := annotate(link.mainOrigins, link.tiploc, link.category)

		if !hasAnnotation(link.mainDests, link.tiploc, link.category) {
			if _, err := conn.Exec(ctx, appendDestinationsSQL, annotatedDests, link.mainRid); err != nil {
				return err
			}
			logger.Debug().Str("rid", link.mainRid).Str("tiploc", link.tiploc).Msg("propagated destinations")
		}
		if !hasAnnotation(link.assocOrigins, link.tiploc, link.category) {
			if _, err := conn.Exec(ctx, appendOriginsSQL, annotatedOrigins, link.assocRid); err != nil {
				return err
			}
			logger.Debug().Str("rid", link.assocRid).Str("tiploc", link.tiploc).Msg("propagated origins")
		}
	}
	return nil
}

func decodeEndpoints(raw [][]byte) ([]darwin.Endpoint, error) {
	endpoints := make([]darwin.Endpoint, 0, len(raw))
	for _, data := range raw {
		var e darwin.Endpoint
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("invalid endpoint json: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

func annotate(endpoints []darwin.Endpoint, tiploc, category string) []string {
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		e.AssociationTiploc = tiploc
		e.Source = category
		data, _ := json.Marshal(e)
		out = append(out, string(data))
	}
	return out
}

func hasAnnotation(endpoints []darwin.Endpoint, tiploc, category string) bool {
	for _, e := range endpoints {
		if e.AssociationTiploc == tiploc && e.Source == category {
			return true
		}
	}
	return false
}
