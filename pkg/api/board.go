package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// boardWindow is how far ahead of the requested time the board looks.
const boardWindow = 500 * time.Minute

const selectBoardLocationSQL = `SELECT tiploc, crs_darwin, crs_corpus, operator, name_short, name_full
	FROM darwin_locations WHERE tiploc=$1 OR crs_darwin=$1 OR crs_corpus=$1 ORDER BY tiploc LIMIT 1;`

const selectDeparturesSQL = `SELECT s.rid, s.uid, s.signalling_id, s.operator, s.origins, s.destinations,
		loc.tiploc, loc.type, loc.activity, loc.ptd, loc.wtd, loc.cancelled,
		st.td, st.td_type, st.plat, st.plat_suppressed
	FROM darwin_schedule_locations AS loc
	INNER JOIN darwin_schedules AS s ON s.rid=loc.rid
	LEFT JOIN darwin_schedule_status AS st
		ON st.rid=loc.rid AND st.tiploc=loc.tiploc AND st.original_wt=loc.original_wt
	WHERE loc.tiploc=$1 AND s.is_active AND s.is_passenger AND NOT s.is_deleted
		AND loc.wtd IS NOT NULL AND loc.wtd >= $2 AND loc.wtd < $3
	ORDER BY loc.wtd ASC LIMIT 150;`

type boardLocation struct {
	Tiploc    string  `json:"tiploc"`
	CRSDarwin *string `json:"crs_darwin"`
	CRSCorpus *string `json:"crs_corpus"`
	Operator  *string `json:"operator"`
	NameShort *string `json:"name_short"`
	NameFull  *string `json:"name_full"`
}

type boardDeparture struct {
	RID          string            `json:"rid"`
	UID          string            `json:"uid"`
	Headcode     *string           `json:"headcode"`
	Operator     string            `json:"operator"`
	Type         string            `json:"type"`
	Activity     string            `json:"activity"`
	Cancelled    bool              `json:"cancelled"`
	Booked       *time.Time        `json:"booked"`
	Working      *time.Time        `json:"working"`
	Live         *time.Time        `json:"live"`
	LiveType     *string           `json:"live_type"`
	Platform     *string           `json:"platform"`
	Origins      []json.RawMessage `json:"origins"`
	Destinations []json.RawMessage `json:"destinations"`
}

type boardResponse struct {
	Location   boardLocation    `json:"location"`
	Generated  time.Time        `json:"generated"`
	Departures []boardDeparture `json:"departures"`
}

func (s *Server) departuresHandler(w http.ResponseWriter, r *http.Request) {
	location := strings.ToUpper(r.PathValue("location"))
	if !alphanumeric(location) {
		s.writeError(w, http.StatusBadRequest, "location codes must be alphanumeric")
		return
	}

	when, err := parseBoardTime(r.PathValue("time"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "time must be 'now' or an ISO 8601 datetime")
		return
	}

	ctx := r.Context()
	var loc boardLocation
	err = s.pool.QueryRow(ctx, selectBoardLocationSQL, location).Scan(
		&loc.Tiploc, &loc.CRSDarwin, &loc.CRSCorpus, &loc.Operator, &loc.NameShort, &loc.NameFull,
	)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "location not found")
		return
	}

	rows, err := s.pool.Query(ctx, selectDeparturesSQL, loc.Tiploc, when, when.Add(boardWindow))
	if err != nil {
		s.logger.Error().Err(err).Str("location", loc.Tiploc).Msg("board query failed")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()

	departures := []boardDeparture{}
	for rows.Next() {
		var (
			dep            boardDeparture
			tiploc         string
			origins, dests [][]byte
			platform       *string
			platSuppressed *bool
		)
		if err := rows.Scan(&dep.RID, &dep.UID, &dep.Headcode, &dep.Operator, &origins, &dests,
			&tiploc, &dep.Type, &dep.Activity, &dep.Booked, &dep.Working, &dep.Cancelled,
			&dep.Live, &dep.LiveType, &platform, &platSuppressed); err != nil {
			s.logger.Error().Err(err).Msg("board scan failed")
			s.writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if platSuppressed == nil || !*platSuppressed {
			dep.Platform = platform
		}
		dep.Origins = rawList(origins)
		dep.Destinations = rawList(dests)
		departures = append(departures, dep)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error().Err(err).Msg("board rows failed")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	s.writeJSON(w, http.StatusOK, boardResponse{
		Location:   loc,
		Generated:  time.Now().UTC(),
		Departures: departures,
	})
}

func parseBoardTime(value string) (time.Time, error) {
	if value == "" || value == "now" {
		return time.Now(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func alphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func rawList(values [][]byte) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		out = append(out, json.RawMessage(v))
	}
	return out
}
