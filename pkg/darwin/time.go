package darwin

import (
	"fmt"
	"time"
)

// Clock is a working or public time of day at second precision. The
// zero value is "absent": Darwin omits whichever of wta/wtp/wtd do not
// apply at a call point.
type Clock struct {
	Seconds int
	Valid   bool
}

// ParseClock reads "HH:MM" or "HH:MM:SS". An empty string is a valid
// absent time.
func ParseClock(s string) (Clock, error) {
	if s == "" {
		return Clock{}, nil
	}
	if len(s) == 5 {
		s += ":00"
	}
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%02d:%02d:%02d", &h, &m, &sec); err != nil {
		return Clock{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if h > 23 || m > 59 || sec > 59 {
		return Clock{}, fmt.Errorf("invalid time %q", s)
	}
	return Clock{Seconds: h*3600 + m*60 + sec, Valid: true}, nil
}

// Format renders "HHMMSS", or six spaces when absent, the fixed-width
// block used by original_wt.
func (c Clock) Format() string {
	if !c.Valid {
		return "      "
	}
	return fmt.Sprintf("%02d%02d%02d", c.Seconds/3600, c.Seconds/60%60, c.Seconds%60)
}

// CompareHours returns (t1-t2) in hours, or 0 when either is absent.
func CompareHours(t1, t2 Clock) float64 {
	if !t1.Valid || !t2.Valid {
		return 0
	}
	return float64(t1.Seconds-t2.Seconds) / 3600
}

// OriginalWT encodes the (wta, wtp, wtd) triplet as the 18-character
// fixed-width secondary key distinguishing call points within a rid.
func OriginalWT(wta, wtp, wtd Clock) string {
	return wta.Format() + wtp.Format() + wtd.Format()
}

// Projector carries the running day offset used to place successive
// times of day onto concrete dates over a service start date. State is
// reset per schedule record but advances across every time field of
// every location.
type Projector struct {
	last   Clock
	offset int
}

// Project places c relative to ssd. A jump of more than 6 hours
// backwards means midnight was crossed forward; a jump of more than 18
// hours forward is a correction back across midnight.
func (p *Projector) Project(ssd time.Time, c Clock) time.Time {
	if !c.Valid {
		return time.Time{}
	}

	delta := CompareHours(c, p.last)
	switch {
	case delta < -6:
		p.offset++
	case delta <= 18:
		// Normal progression.
	default:
		p.offset--
	}
	p.last = c

	return ssd.AddDate(0, 0, p.offset).Add(time.Duration(c.Seconds) * time.Second)
}

// Offset returns the current day offset, mostly for tests.
func (p *Projector) Offset() int {
	return p.offset
}

// Combine places a reported time of day onto the day of its anchor
// working datetime using the one-shot form of the day-offset rule.
func Combine(anchor time.Time, c Clock) time.Time {
	if anchor.IsZero() || !c.Valid {
		return time.Time{}
	}

	anchorClock := Clock{
		Seconds: anchor.Hour()*3600 + anchor.Minute()*60 + anchor.Second(),
		Valid:   true,
	}

	offset := 0
	delta := CompareHours(c, anchorClock)
	switch {
	case delta < -6:
		offset = 1
	case delta <= 18:
		offset = 0
	default:
		offset = -1
	}

	day := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
	return day.AddDate(0, 0, offset).Add(time.Duration(c.Seconds) * time.Second)
}

// ParseSSD reads a service start date ("2006-01-02").
func ParseSSD(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid service start date %q: %w", s, err)
	}
	return t, nil
}
