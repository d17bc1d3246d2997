package meetings

import (
	"fmt"
	"html"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/anatolykoptev/go_meetmap/internal/engine"
)

// Default map view: Indianapolis metro at county zoom.
const (
	DefaultCenterLat = 39.7684
	DefaultCenterLng = -86.1581
	DefaultZoom      = 10
)

// popupDescriptionRunes caps the description excerpt shown in a popup.
const popupDescriptionRunes = 280

// Marker is a geocoded address with the meetings that referenced it.
type Marker struct {
	Address  string          `json:"address"`
	Location engine.Location `json:"location"`
	Videos   []VideoRef      `json:"videos"`
}

// MapOptions controls the initial view when no markers are present.
type MapOptions struct {
	Title     string
	CenterLat float64
	CenterLng float64
	Zoom      int
}

// DefaultMapOptions returns the stock view.
func DefaultMapOptions() MapOptions {
	return MapOptions{
		Title:     "Meeting Map",
		CenterLat: DefaultCenterLat,
		CenterLng: DefaultCenterLng,
		Zoom:      DefaultZoom,
	}
}

type mapMarker struct {
	Lat   float64
	Lng   float64
	Popup string
}

type mapData struct {
	Title     string
	CenterLat float64
	CenterLng float64
	Zoom      int
	Markers   []mapMarker
}

var mapTmpl = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map("map").setView([{{.CenterLat}}, {{.CenterLng}}], {{.Zoom}});
L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
  maxZoom: 19,
  attribution: "&copy; OpenStreetMap contributors"
}).addTo(map);
{{range .Markers}}L.marker([{{.Lat}}, {{.Lng}}]).addTo(map).bindPopup({{.Popup}});
{{end}}</script>
</body>
</html>
`))

// Center returns the mean marker position, or the option defaults when there are none.
func Center(markers []Marker, opts MapOptions) (lat, lng float64) {
	if len(markers) == 0 {
		return opts.CenterLat, opts.CenterLng
	}
	for _, m := range markers {
		lat += m.Location.Lat
		lng += m.Location.Lng
	}
	n := float64(len(markers))
	return lat / n, lng / n
}

// PopupHTML renders the popup body for a marker. All interpolated text is escaped.
func PopupHTML(m Marker) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Address:</b> %s<br><b>Details:</b><ul>", html.EscapeString(m.Address))
	for _, v := range m.Videos {
		fmt.Fprintf(&sb, "<li><b>%s</b><br>", html.EscapeString(v.Meeting.Label()))
		if v.VideoURL != "" {
			fmt.Fprintf(&sb, `Recording: <a href="%s" target="_blank">Watch Video</a><br>`, html.EscapeString(v.VideoURL))
		}
		if v.DescriptionFileURL != "" {
			fmt.Fprintf(&sb, `Description: <a href="%s" target="_blank">View Details</a>`, html.EscapeString(v.DescriptionFileURL))
		}
		if v.AgendaURL != "" {
			fmt.Fprintf(&sb, `Agenda: <a href="%s" target="_blank">View Agenda</a>`, html.EscapeString(v.AgendaURL))
		}
		if v.Description != "" {
			excerpt := engine.TruncateRunes(engine.CollapseSpace(v.Description), popupDescriptionRunes, "…")
			fmt.Fprintf(&sb, "<br><small>%s</small>", html.EscapeString(excerpt))
		}
		sb.WriteString("</li>")
	}
	sb.WriteString("</ul>")
	return sb.String()
}

// RenderMap writes a self-contained Leaflet page with one marker per address.
func RenderMap(w io.Writer, markers []Marker, opts MapOptions) error {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.Title == "" {
		opts.Title = "Meeting Map"
	}
	data := mapData{Title: opts.Title, Zoom: opts.Zoom}
	data.CenterLat, data.CenterLng = Center(markers, opts)
	for _, m := range markers {
		data.Markers = append(data.Markers, mapMarker{
			Lat:   m.Location.Lat,
			Lng:   m.Location.Lng,
			Popup: PopupHTML(m),
		})
	}
	if err := mapTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render map: %w", err)
	}
	engine.AddMarkersRendered(len(markers))
	return nil
}

// SaveMap renders the map to path, creating parent directories. The file is
// written to a temp sibling first so a served map is never half-written.
func SaveMap(path string, markers []Marker, opts MapOptions) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("map dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".map-*.html")
	if err != nil {
		return fmt.Errorf("create map: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := RenderMap(tmp, markers, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close map: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod map: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save map: %w", err)
	}
	return nil
}
