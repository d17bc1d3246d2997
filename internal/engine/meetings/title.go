package meetings

import (
	"regexp"
	"strings"
	"time"
)

// titleRe matches recording titles of the form "MM/DD/YY - Meeting Type".
var titleRe = regexp.MustCompile(`^(\d{2}/\d{2}/\d{2}) - (.+)`)

const titleDateLayout = "01/02/06"

// Meeting is the date and body parsed from a recording title.
type Meeting struct {
	RawDate string    `json:"raw_date,omitempty"` // as written in the title, e.g. "11/26/25"
	Date    time.Time `json:"date,omitempty"`     // zero when RawDate is not a real calendar date
	Type    string    `json:"meeting_type,omitempty"`
}

// ParseTitle extracts the meeting date and type. Titles that do not follow the
// convention yield a zero Meeting and ok=false.
func ParseTitle(title string) (m Meeting, ok bool) {
	match := titleRe.FindStringSubmatch(title)
	if match == nil {
		return Meeting{}, false
	}
	m.RawDate = match[1]
	m.Type = strings.TrimSpace(match[2])
	if d, err := time.Parse(titleDateLayout, m.RawDate); err == nil {
		m.Date = d
	}
	return m, true
}

// Label renders "date - type" for popups, with placeholders for missing parts.
func (m Meeting) Label() string {
	date, typ := m.RawDate, m.Type
	if date == "" {
		date = "Unknown date"
	}
	if typ == "" {
		typ = "Meeting"
	}
	return date + " - " + typ
}
