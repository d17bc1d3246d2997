package mapserver

import "github.com/anatolykoptev/go_meetmap/internal/engine/meetings"

// BuildInput is the meeting_map_build input.
type BuildInput struct {
	ChannelID      string   `json:"channel_id,omitempty" jsonschema:"YouTube channel ID whose uploads to map (default: configured channel)"`
	VideoIDs       []string `json:"video_ids,omitempty" jsonschema:"Video IDs or URLs to map instead of a channel"`
	IncludeAgendas bool     `json:"include_agendas,omitempty" jsonschema:"Also scrape agendas from the configured meetings page"`
}

// BuildOutput is the meeting_map_build result.
type BuildOutput struct {
	RunID     int64    `json:"run_id"`
	MapPath   string   `json:"map_path"`
	Videos    int      `json:"videos"`
	Addresses int      `json:"addresses"`
	Markers   int      `json:"markers"`
	Skipped   []string `json:"skipped,omitempty"`
}

// VideoInput is a recording passed inline.
type VideoInput struct {
	ID          string `json:"id" jsonschema:"YouTube video ID"`
	Title       string `json:"title,omitempty" jsonschema:"Title, e.g. '11/26/25 - Fortville Plan Commission'"`
	Description string `json:"description" jsonschema:"Video description text"`
}

// AddressesInput is the meeting_addresses input.
type AddressesInput struct {
	VideoIDs []string     `json:"video_ids,omitempty" jsonschema:"Video IDs or URLs to look up"`
	Videos   []VideoInput `json:"videos,omitempty" jsonschema:"Inline videos to group"`
}

// AddressesOutput is the meeting_addresses result.
type AddressesOutput struct {
	Videos int                     `json:"videos"`
	Count  int                     `json:"count"`
	Groups []meetings.AddressGroup `json:"groups"`
}

// RunsInput is the meeting_runs input.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max runs to return (default 20, max 200)"`
}

// RunsOutput is the meeting_runs result.
type RunsOutput struct {
	Runs []meetings.Run `json:"runs"`
}

// HistoryInput is the meeting_address_history input.
type HistoryInput struct {
	Address string `json:"address" jsonschema:"Street address, e.g. '123 W Main St'"`
}

// HistoryOutput is the meeting_address_history result.
type HistoryOutput struct {
	Address   string              `json:"address"`
	Sightings []meetings.Sighting `json:"sightings"`
}
