package store

import (
	"context"
	"fmt"
)

const selectEndpointLocationsSQL = `SELECT type,activity,cancelled,loc.rid,tiploc FROM darwin_schedule_locations as loc
	INNER JOIN darwin_schedules AS s ON s.rid=loc.rid
	WHERE type='OR' OR type='OPOR' OR type='DT' OR type='OPDT' ORDER BY rid DESC, index ASC;`

const setEndpointsSQL = "UPDATE darwin_schedules SET (origins,destinations)=($1::json[],$2::json[]) WHERE rid=$3;"

type endpointRow struct {
	typ       string
	activity  string
	cancelled bool
	rid       string
	tiploc    string
}

// RenewScheduleMeta rebuilds the origins/destinations arrays of every
// schedule from its stored call points, then replays association
// propagation across all pairs. Run after reference data changes so
// endpoint JSON picks up renamed locations.
func (s *Store) RenewScheduleMeta(ctx context.Context, conn Conn) error {
	s.logger.Info().Msg("computing origin and destination lists")

	rows, err := conn.Query(ctx, selectEndpointLocationsSQL)
	if err != nil {
		return fmt.Errorf("endpoint location query failed: %w", err)
	}
	var endpoints []endpointRow
	for rows.Next() {
		var row endpointRow
		if err := rows.Scan(&row.typ, &row.activity, &row.cancelled, &row.rid, &row.tiploc); err != nil {
			rows.Close()
			return err
		}
		endpoints = append(endpoints, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	ref := s.Reference()
	var crid string
	origins, destinations := []string{}, []string{}
	flush := func() error {
		if crid == "" {
			return nil
		}
		_, err := conn.Exec(ctx, setEndpointsSQL, origins, destinations, crid)
		return err
	}

	for _, row := range endpoints {
		if row.rid != crid {
			if err := flush(); err != nil {
				return err
			}
			crid, origins, destinations = row.rid, []string{}, []string{}
		}

		entry := s.endpoint(ref, row.typ, row.tiploc, row.activity, row.cancelled)
		switch row.typ {
		case "OR", "OPOR":
			origins = append(origins, entry)
		case "DT", "OPDT":
			destinations = append(destinations, entry)
		}
	}
	if err := flush(); err != nil {
		return err
	}

	s.logger.Info().Int("locations", len(endpoints)).Msg("origin and destination lists rebuilt, replaying associations")
	if err := RenewAssociationMeta(ctx, conn, "", ""); err != nil {
		return err
	}
	s.logger.Info().Msg("origin and destination lists completed")
	return nil
}
