package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ironswallow/ironswallow/pkg/darwin"
	"github.com/ironswallow/ironswallow/pkg/darwin/xmlparse"
)

const (
	upsertStatusSQL = `INSERT INTO darwin_schedule_status VALUES ($1,$2,$3,  $4,$5,$6,  $7,$8,$9, $10,$11,$12, $13,$14,$15, $16,$17,$18,$19,$20, $21)
		ON CONFLICT (rid, tiploc, original_wt) DO UPDATE SET
		(ta,tp,td, ta_source,tp_source,td_source, ta_type,tp_type,td_type, ta_delayed,tp_delayed,td_delayed, length, plat,plat_suppressed,plat_cis_suppressed,plat_confirmed,plat_source)=
		(EXCLUDED.ta,EXCLUDED.tp,EXCLUDED.td, EXCLUDED.ta_source,EXCLUDED.tp_source,EXCLUDED.td_source, EXCLUDED.ta_type,EXCLUDED.tp_type,EXCLUDED.td_type, EXCLUDED.ta_delayed,EXCLUDED.tp_delayed,EXCLUDED.td_delayed, EXCLUDED.length, EXCLUDED.plat,EXCLUDED.plat_suppressed,EXCLUDED.plat_cis_suppressed,EXCLUDED.plat_confirmed,EXCLUDED.plat_source);`

	updateDelayReasonSQL = "UPDATE darwin_schedules SET delay_reason=$1 WHERE rid=$2;"
)

// statusOps folds a TS record into the live status table. Reported
// times are projected onto the service day anchored at the call
// point's own working time.
func (s *Store) statusOps(record *xmlparse.Node) ([]Op, error) {
	rid := record.Attr("rid")
	ssd, err := darwin.ParseSSD(record.Attr("ssd"))
	if err != nil {
		return nil, fmt.Errorf("rid %s: %w", rid, err)
	}

	ref := s.Reference()
	var ops []Op
	var batch [][]any

	for _, loc := range record.List() {
		switch loc.Tag() {
		case "Location":
			wta, wtp, wtd, err := workingTimes(loc)
			if err != nil {
				return nil, fmt.Errorf("rid %s: %w", rid, err)
			}
			originalWT := darwin.OriginalWT(wta, wtp, wtd)

			var (
				times   [3]any
				sources [3]any
				types   [3]any
				delayed [3]bool
			)
			anchors := [3][]darwin.Clock{
				{wta, wtp, wtd},
				{wtp, wta, wtd},
				{wtd, wtp, wta},
			}
			for i, name := range []string{"arr", "pass", "dep"} {
				event := loc.Child(name)
				if event == nil {
					continue
				}

				content := event.Attr("at")
				if content == "" {
					content = event.Attr("et")
				}
				if content != "" {
					c, err := darwin.ParseClock(content)
					if err != nil {
						return nil, fmt.Errorf("rid %s: %w", rid, err)
					}
					if at := statusAnchor(ssd, anchors[i]); !at.IsZero() {
						if projected := darwin.Combine(at, c); !projected.IsZero() {
							times[i] = projected
						}
					}
				}
				sources[i] = nullable(event.Attr("src"))
				if event.Has("et") {
					types[i] = "E"
				} else if event.Has("at") {
					types[i] = "A"
				}
				delayed[i] = attrFlag(event, "delayed")
			}

			var plat, platSource any
			var platSup, platCIS, platConf bool
			if p := loc.Child("plat"); p != nil {
				plat = nullable(p.Text())
				platSup = attrFlag(p, "platsup")
				platCIS = attrFlag(p, "cisPlatsup")
				platConf = attrFlag(p, "conf")
				platSource = nullable(p.Attr("platsrc"))
			}

			var length any
			if l := loc.Child("length"); l != nil {
				length = nullable(l.Text())
			}

			batch = append(batch, []any{
				rid, loc.Attr("tpl"), originalWT,
				times[0], times[1], times[2],
				sources[0], sources[1], sources[2],
				types[0], types[1], types[2],
				delayed[0], delayed[1], delayed[2],
				plat, platSup, platCIS, platConf, platSource,
				length,
			})

		case "LateReason":
			reason, err := json.Marshal(darwin.BuildReason(ref, loc))
			if err != nil {
				return nil, err
			}
			ops = append(ops, Single(updateDelayReasonSQL, reason, rid))
		}
	}

	ops = append(ops, Batch(upsertStatusSQL, batch))
	return ops, nil
}

// statusAnchor builds the working datetime a reported time is placed
// against: the first of the candidate working times that is present.
func statusAnchor(ssd time.Time, candidates []darwin.Clock) time.Time {
	for _, c := range candidates {
		if c.Valid {
			return ssd.Add(time.Duration(c.Seconds) * time.Second)
		}
	}
	return time.Time{}
}
