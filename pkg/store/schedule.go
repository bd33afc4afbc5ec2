package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
)

// Call point tags in a schedule, in the order Darwin emits them:
// origins, intermediate points, passing points, destinations, each with
// an operational variant.
var callTags = map[string]bool{
	"OPOR": true, "OR": true, "OPIP": true, "IP": true,
	"PP": true, "DT": true, "OPDT": true,
}

const (
	holdBackAssociationsSQL = `SELECT category,tiploc,main_rid,main_original_wt,assoc_rid,assoc_original_wt,
		tiploc,main_rid,main_original_wt,
		tiploc,assoc_rid,assoc_original_wt
		FROM darwin_associations WHERE main_rid=$1 OR assoc_rid=$2;`

	deleteLocationsSQL = "DELETE FROM darwin_schedule_locations WHERE rid=$1;"

	insertScheduleSQL = `INSERT INTO darwin_schedules VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::json[], $14::json[])
		ON CONFLICT (rid) DO UPDATE SET
		signalling_id=EXCLUDED.signalling_id, status=EXCLUDED.status, category=EXCLUDED.category,
		operator=EXCLUDED.operator, is_active=EXCLUDED.is_active, is_charter=EXCLUDED.is_charter,
		is_deleted=EXCLUDED.is_deleted, is_passenger=EXCLUDED.is_passenger, origins=EXCLUDED.origins, destinations=EXCLUDED.destinations;`

	insertLocationsSQL = `INSERT INTO darwin_schedule_locations VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) ON CONFLICT DO NOTHING;`

	replayAssociationsSQL = `INSERT INTO darwin_associations
		(category,tiploc,main_rid,main_original_wt,assoc_rid,assoc_original_wt) SELECT $1,$2,$3,$4,$5,$6 WHERE
		EXISTS (SELECT * FROM darwin_schedule_locations WHERE tiploc=$7 AND rid=$8 AND original_wt=$9) AND
		EXISTS (SELECT * FROM darwin_schedule_locations WHERE tiploc=$10 AND rid=$11 AND original_wt=$12) ON CONFLICT DO NOTHING;`

	updateCancelReasonSQL = "UPDATE darwin_schedules SET cancel_reason=$1 WHERE rid=$2;"
)

// scheduleOps replaces a schedule: its row is upserted, its call points
// are deleted and re-inserted, and any associations that referenced the
// rid are held back across the replacement and conditionally
// re-inserted once the new call points exist.
func (s *Store) scheduleOps(record *xmlparse.Node) ([]Op, error) {
	rid := record.Attr("rid")
	if rid == "" {
		return nil, fmt.Errorf("schedule without rid")
	}
	ssd, err := darwin.ParseSSD(record.Attr("ssd"))
	if err != nil {
		return nil, err
	}

	ref := s.Reference()
	ops := []Op{
		Retain(holdBackAssociationsSQL, rid, rid),
		Single(deleteLocationsSQL, rid),
	}

	var (
		proj      darwin.Projector
		locations [][]any
		index     int
	)
	// Empty endpoint lists must store as empty arrays, not NULL.
	origins, destinations := []string{}, []string{}

	for _, loc := range record.List() {
		switch {
		case callTags[loc.Tag()]:
			tiploc := loc.Attr("tpl")
			activity := loc.Attr("act")

			wta, wtp, wtd, err := workingTimes(loc)
			if err != nil {
				return nil, fmt.Errorf("rid %s: %w", rid, err)
			}
			originalWT := darwin.OriginalWT(wta, wtp, wtd)

			// Five projected datetimes in field order; the running
			// day offset advances through every one of them.
			times := make([]any, 0, 5)
			for _, key := range []string{"pta", "wta", "wtp", "ptd", "wtd"} {
				c, err := clockOf(loc, key)
				if err != nil {
					return nil, fmt.Errorf("rid %s: %w", rid, err)
				}
				if !c.Valid {
					times = append(times, nil)
					continue
				}
				times = append(times, proj.Project(ssd, c))
			}

			rdelay := 0
			if v := loc.Attr("rdelay"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					rdelay = n
				}
			}

			row := []any{rid, index, loc.Tag(), tiploc, activity, originalWT}
			row = append(row, times...)
			row = append(row, attrFlag(loc, "can"), rdelay)
			locations = append(locations, row)

			endpoint := s.endpoint(ref, loc.Tag(), tiploc, activity, attrFlag(loc, "can"))
			switch loc.Tag() {
			case "OR", "OPOR":
				origins = append(origins, endpoint)
			case "DT", "OPDT":
				destinations = append(destinations, endpoint)
			}
			index++

		case loc.Tag() == "cancelReason":
			reason, err := json.Marshal(darwin.BuildReason(ref, loc))
			if err != nil {
				return nil, err
			}
			ops = append(ops, Single(updateCancelReasonSQL, reason, rid))
		}
	}

	ops = append(ops, Single(insertScheduleSQL,
		record.Attr("uid"), rid, nullable(record.Attr("rsid")), ssd, record.Attr("trainId"),
		attrDefault(record, "status", "P"), attrDefault(record, "trainCat", "OO"), record.Attr("toc"),
		record.Attr("isActive") != "false", attrFlag(record, "isCharter"),
		attrFlag(record, "deleted"), record.Attr("isPassengerSvc") != "false",
		origins, destinations,
	))
	ops = append(ops, Batch(insertLocationsSQL, locations))
	ops = append(ops, UseRetain(replayAssociationsSQL))
	return ops, nil
}

// endpoint renders one origins/destinations entry as JSON.
func (s *Store) endpoint(ref *darwin.Reference, typ, tiploc, activity string, cancelled bool) string {
	loc, ok := ref.Location(tiploc)
	if !ok {
		loc = darwin.Location{Tiploc: tiploc}
	}
	entry := darwin.Endpoint{
		Source:    "SC",
		Type:      typ,
		Activity:  activity,
		Cancelled: cancelled,
		Location:  loc,
	}
	data, _ := json.Marshal(entry)
	return string(data)
}
