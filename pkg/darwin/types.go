// Package darwin holds the Push Port document model: the decode
// profile, record classification helpers, reference data types and the
// railway-day time arithmetic shared by every transformer.
package darwin

// Location is a reference location record, seeded from the Darwin
// timetable reference file and the CORPUS extract.
type Location struct {
	Tiploc     string  `json:"tiploc"`
	CRSDarwin  *string `json:"crs_darwin"`
	CRSCorpus  *string `json:"crs_corpus"`
	Operator   *string `json:"operator"`
	NameDarwin *string `json:"name_darwin"`
	NameCorpus *string `json:"name_corpus"`
	Category   *string `json:"category"`
	NameShort  *string `json:"name_short"`
	NameFull   *string `json:"name_full"`
}

// LocationOutline is the compact rendering of a location embedded in
// reason and endpoint JSON values.
type LocationOutline struct {
	Tiploc    string  `json:"tiploc"`
	CRS       *string `json:"crs"`
	Operator  *string `json:"operator"`
	NameShort *string `json:"name_short"`
	NameFull  *string `json:"name_full"`
}

// Outline reduces a location to its presentation fields.
func (l Location) Outline() LocationOutline {
	crs := l.CRSDarwin
	if crs == nil {
		crs = l.CRSCorpus
	}
	return LocationOutline{
		Tiploc:    l.Tiploc,
		CRS:       crs,
		Operator:  l.Operator,
		NameShort: l.NameShort,
		NameFull:  l.NameFull,
	}
}

// Endpoint is one entry of a schedule's origins or destinations array.
// Native entries carry source "SC"; entries propagated over an
// association carry the association category as source and the tiploc
// the services meet at.
type Endpoint struct {
	Source    string `json:"source"`
	Type      string `json:"type"`
	Activity  string `json:"activity"`
	Cancelled bool   `json:"cancelled"`
	Location
	AssociationTiploc string `json:"association_tiploc,omitempty"`
}

// ReasonKey identifies a cancellation ("C") or delay ("D") reason text.
type ReasonKey struct {
	Code string
	Type string
}

// Reference is an immutable snapshot of the process-wide reference
// data. Handlers read a snapshot without locking; the supervisor swaps
// in a fresh one on refresh.
type Reference struct {
	Locations map[string]Location
	Reasons   map[ReasonKey]string
}

// NewReference returns an empty snapshot.
func NewReference() *Reference {
	return &Reference{
		Locations: make(map[string]Location),
		Reasons:   make(map[ReasonKey]string),
	}
}

// Location looks up a tiploc.
func (r *Reference) Location(tiploc string) (Location, bool) {
	if r == nil {
		return Location{}, false
	}
	loc, ok := r.Locations[tiploc]
	return loc, ok
}

// Reason looks up a reason text by code and type.
func (r *Reference) Reason(code, typ string) string {
	if r == nil {
		return ""
	}
	return r.Reasons[ReasonKey{Code: code, Type: typ}]
}
