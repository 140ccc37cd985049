package view

import (
	"fmt"
	"math"
	"strings"

	appLog "societycal/internal/log"
	"societycal/internal/model"
)

const (
	tileSize = 256
	// Pixels covered by one character cell.
	cellPxW = 8
	cellPxH = 16

	searchZoom = 13
	maxZoom    = 18
)

// Marker is one placed event.
type Marker struct {
	Record model.EventRecord
	// Tile is the z/x/y slippy tile containing the marker.
	Tile string
	// Col, Row are the cell offsets within the region; InView is false
	// when the marker falls outside it.
	Col, Row int
	InView   bool
}

// MapRenderer places events with coordinates on a Web Mercator viewport.
type MapRenderer struct {
	base
	opts Options

	lat, lon float64
	zoom     int
	width    int
	height   int
	searched *model.SearchedLocation
}

func NewMapRenderer(opts Options) *MapRenderer {
	r := &MapRenderer{
		opts: opts,
		lat:  opts.Map.CenterLat,
		lon:  opts.Map.CenterLon,
		zoom: opts.Map.Zoom,
	}
	r.place = withCoordinates
	return r
}

func (r *MapRenderer) Kind() model.ViewKind { return model.ViewMap }

func (r *MapRenderer) Init(region *Region, feed Feed) error {
	if err := r.init(region, feed); err != nil {
		return err
	}
	r.Resize()
	return nil
}

func (r *MapRenderer) Resize() {
	w, h := r.size()
	r.mu.Lock()
	r.width, r.height = w, h
	r.mu.Unlock()
}

// Recenter moves the viewport to a searched location.
func (r *MapRenderer) Recenter(loc model.SearchedLocation) {
	r.mu.Lock()
	r.lat, r.lon, r.zoom = loc.Lat, loc.Lon, searchZoom
	r.searched = &loc
	r.mu.Unlock()
	appLog.Info("map recentered", "lat", loc.Lat, "lon", loc.Lon, "name", loc.Name)
}

// SetZoom clamps z to the tile range.
func (r *MapRenderer) SetZoom(z int) {
	if z < 0 {
		z = 0
	}
	if z > maxZoom {
		z = maxZoom
	}
	r.mu.Lock()
	r.zoom = z
	r.mu.Unlock()
}

// Center returns the viewport centre and zoom.
func (r *MapRenderer) Center() (lat, lon float64, zoom int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lat, r.lon, r.zoom
}

// Markers projects every placed event into the current viewport.
func (r *MapRenderer) Markers() []Marker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markersLocked()
}

func (r *MapRenderer) markersLocked() []Marker {
	items := r.itemsLocked()
	cx, cy := project(r.lat, r.lon, r.zoom)
	out := make([]Marker, 0, len(items))
	for _, rec := range items {
		x, y := project(*rec.Latitude, *rec.Longitude, r.zoom)
		col := int(math.Floor((x-cx)/cellPxW)) + r.width/2
		row := int(math.Floor((y-cy)/cellPxH)) + r.plotHeight()/2
		out = append(out, Marker{
			Record: rec,
			Tile:   fmt.Sprintf("%d/%d/%d", r.zoom, int(x)/tileSize, int(y)/tileSize),
			Col:    col,
			Row:    row,
			InView: col >= 0 && col < r.width && row >= 0 && row < r.plotHeight(),
		})
	}
	return out
}

func (r *MapRenderer) plotHeight() int {
	h := r.height - 2
	if h < 0 {
		return 0
	}
	return h
}

// Render plots numbered markers on a dotted field, followed by a legend.
func (r *MapRenderer) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.width <= 0 || r.plotHeight() <= 0 {
		return ""
	}

	markers := r.markersLocked()
	grid := make([][]rune, r.plotHeight())
	for i := range grid {
		grid[i] = []rune(strings.Repeat("·", r.width))
	}

	var b strings.Builder
	title := fmt.Sprintf("Map %.4f, %.4f zoom %d", r.lat, r.lon, r.zoom)
	if r.searched != nil {
		title += " near " + r.searched.Name
	}
	b.WriteString(clip(title, r.width) + "\n")

	var legend []string
	for i, m := range markers {
		label := markerLabel(i)
		if m.InView {
			grid[m.Row][m.Col] = label
		}
		where := "off-screen"
		if m.InView {
			where = "tile " + m.Tile
		}
		legend = append(legend, clip(fmt.Sprintf("%c %s @ %s (%s)", label, m.Record.Title, m.Record.Location, where), r.width))
	}

	for _, row := range grid {
		b.WriteString(string(row) + "\n")
	}
	fmt.Fprintf(&b, "%d event(s) placed\n", len(markers))
	for _, l := range legend {
		b.WriteString(l + "\n")
	}
	return b.String()
}

func withCoordinates(records []model.EventRecord) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(records))
	for _, rec := range records {
		if rec.HasCoordinates() {
			out = append(out, rec)
		}
	}
	return out
}

// project converts WGS84 to Web Mercator world pixels at zoom.
func project(lat, lon float64, zoom int) (x, y float64) {
	n := float64(tileSize) * math.Exp2(float64(zoom))
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	rad := lat * math.Pi / 180
	x = (lon + 180) / 360 * n
	y = (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * n
	return x, y
}

func markerLabel(i int) rune {
	if i < 9 {
		return rune('1' + i)
	}
	return '*'
}
