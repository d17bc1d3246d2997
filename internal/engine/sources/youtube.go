package sources

// YouTube implementation is split across two files by responsibility:
//   youtube_data.go:  channel uploads listing via the Data API v3 (full descriptions)
//   youtube_video.go: per-video metadata through the watch page (kkdai/youtube)
// Both return engine.Video so the meetings pipeline does not care where a video came from.

import (
	"regexp"
	"strings"
)

var videoIDRE = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|live/|shorts/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
var bareIDRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// ExtractVideoID pulls the 11-char video ID from any YouTube URL format.
// A bare ID is returned unchanged; anything else yields "".
func ExtractVideoID(s string) string {
	s = strings.TrimSpace(s)
	if bareIDRE.MatchString(s) {
		return s
	}
	m := videoIDRE.FindStringSubmatch(s)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}
