package meetings

import (
	"strings"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
)

// VideoRef is one meeting that mentioned an address: a recording, an agenda, or both.
type VideoRef struct {
	Meeting            Meeting `json:"meeting"`
	VideoID            string  `json:"video_id,omitempty"`
	VideoURL           string  `json:"video_url,omitempty"`
	DescriptionFileURL string  `json:"description_file_url,omitempty"`
	Description        string  `json:"description,omitempty"`
	AgendaURL          string  `json:"agenda_url,omitempty"`
}

// AddressGroup collects every meeting reference for one address.
type AddressGroup struct {
	Address string     `json:"address"`
	Videos  []VideoRef `json:"videos"`
}

// Grouping is an insertion-ordered address → references index.
// The zero value is not usable; call NewGrouping.
type Grouping struct {
	order []string
	refs  map[string][]VideoRef
}

// NewGrouping returns an empty index.
func NewGrouping() *Grouping {
	return &Grouping{refs: make(map[string][]VideoRef)}
}

// Add appends ref under address, recording first-seen order.
func (g *Grouping) Add(address string, ref VideoRef) {
	if _, ok := g.refs[address]; !ok {
		g.order = append(g.order, address)
	}
	g.refs[address] = append(g.refs[address], ref)
}

// Len returns the number of distinct addresses.
func (g *Grouping) Len() int { return len(g.order) }

// Groups returns the addresses in first-seen order.
func (g *Grouping) Groups() []AddressGroup {
	out := make([]AddressGroup, 0, len(g.order))
	for _, a := range g.order {
		out = append(out, AddressGroup{Address: a, Videos: g.refs[a]})
	}
	return out
}

// DescriptionFileURL is where the hosted copy of a video's description lives.
func DescriptionFileURL(baseFileURL, videoID string) string {
	return strings.TrimRight(baseFileURL, "/") + "/" + videoID + ".txt"
}

// GroupByAddress indexes videos by the addresses found in their descriptions.
// A video citing the same address twice is listed twice under it.
func GroupByAddress(videos []engine.Video, baseFileURL string) *Grouping {
	g := NewGrouping()
	for _, v := range videos {
		meeting, _ := ParseTitle(v.Title)
		ref := VideoRef{
			Meeting:            meeting,
			VideoID:            v.ID,
			VideoURL:           v.WatchURL(),
			DescriptionFileURL: DescriptionFileURL(baseFileURL, v.ID),
			Description:        v.Description,
		}
		for _, addr := range ExtractAddresses(v.Description) {
			g.Add(addr, ref)
		}
	}
	return g
}

// AddAgendas merges agenda addresses into g. The agenda label (minus the
// "Download PDF Agenda for" boilerplate) becomes the meeting type.
func (g *Grouping) AddAgendas(agendas []engine.Agenda) {
	for _, a := range agendas {
		ref := VideoRef{
			Meeting:   Meeting{Type: agendaMeetingType(a.Title)},
			AgendaURL: a.URL,
		}
		for _, addr := range a.Addresses {
			g.Add(addr, ref)
		}
	}
}

func agendaMeetingType(label string) string {
	label = strings.TrimSpace(label)
	for _, p := range []string{"Download PDF Agenda for ", "Download PDF Agenda"} {
		if strings.HasPrefix(label, p) {
			label = strings.TrimSpace(strings.TrimPrefix(label, p))
			break
		}
	}
	if label == "" {
		return "Agenda"
	}
	return label
}
