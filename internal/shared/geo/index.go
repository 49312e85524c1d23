package geo

import (
	"fmt"
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50
	// tolerance pads degenerate boxes (single point or straight N-S/E-W lines).
	tolerance = 1e-6
	kmPerDeg  = 111.32
)

// routeItem indexes a route by its bounding box.
type routeItem struct {
	id   string
	path []Coord
	rect *rtreego.Rect
}

func (r *routeItem) Bounds() *rtreego.Rect {
	return r.rect
}

// RouteIndex answers "which routes pass near this point" over an R-tree of
// route bounding boxes.
type RouteIndex struct {
	mu    sync.RWMutex
	tree  *rtreego.Rtree
	count int
}

func NewRouteIndex() *RouteIndex {
	return &RouteIndex{tree: rtreego.NewTree(dimensions, minChildren, maxChildren)}
}

// Insert adds a route. Empty paths are ignored.
func (idx *RouteIndex) Insert(id string, path []Coord) error {
	if len(path) == 0 {
		return nil
	}
	minLat, minLng := math.Inf(1), math.Inf(1)
	maxLat, maxLng := math.Inf(-1), math.Inf(-1)
	for _, c := range path {
		minLat = math.Min(minLat, c.Lat)
		maxLat = math.Max(maxLat, c.Lat)
		minLng = math.Min(minLng, c.Lng)
		maxLng = math.Max(maxLng, c.Lng)
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{minLat, minLng},
		[]float64{math.Max(maxLat-minLat, tolerance), math.Max(maxLng-minLng, tolerance)},
	)
	if err != nil {
		return fmt.Errorf("route %s bounds: %w", id, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.Insert(&routeItem{id: id, path: path, rect: rect})
	idx.count++
	return nil
}

// Len returns the number of indexed routes.
func (idx *RouteIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// Near returns the ids of routes with at least one sample within radiusKm of
// the point. The R-tree narrows candidates by bounding box; samples are then
// checked with the haversine distance.
func (idx *RouteIndex) Near(lat, lng, radiusKm float64) ([]string, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive")
	}
	latDeg := radiusKm / kmPerDeg
	cosLat := math.Cos(toRad(lat))
	lngDeg := 180.0
	if cosLat > 1e-9 {
		lngDeg = math.Min(radiusKm/(kmPerDeg*cosLat), 180)
	}
	boxes, err := searchBoxes(lat-latDeg, 2*latDeg, lng, lngDeg)
	if err != nil {
		return nil, fmt.Errorf("search box: %w", err)
	}

	var candidates []rtreego.Spatial
	idx.mu.RLock()
	for _, box := range boxes {
		candidates = append(candidates, idx.tree.SearchIntersect(box)...)
	}
	idx.mu.RUnlock()

	ids := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		item, ok := c.(*routeItem)
		if !ok {
			continue
		}
		if _, dup := seen[item.id]; dup {
			continue
		}
		for _, p := range item.path {
			if HaversineKm(lat, lng, p.Lat, p.Lng) <= radiusKm {
				seen[item.id] = struct{}{}
				ids = append(ids, item.id)
				break
			}
		}
	}
	return ids, nil
}

// searchBoxes covers [lng-lngDeg, lng+lngDeg], split in two where it crosses
// the antimeridian.
func searchBoxes(minLat, latSpan, lng, lngDeg float64) ([]*rtreego.Rect, error) {
	span := func(from, to float64) (*rtreego.Rect, error) {
		return rtreego.NewRect(rtreego.Point{minLat, from}, []float64{latSpan, math.Max(to-from, tolerance)})
	}
	lo, hi := lng-lngDeg, lng+lngDeg
	var ranges [][2]float64
	switch {
	case lngDeg >= 180:
		ranges = [][2]float64{{-180, 180}}
	case lo < -180:
		ranges = [][2]float64{{lo + 360, 180}, {-180, hi}}
	case hi > 180:
		ranges = [][2]float64{{lo, 180}, {-180, hi - 360}}
	default:
		ranges = [][2]float64{{lo, hi}}
	}
	boxes := make([]*rtreego.Rect, 0, len(ranges))
	for _, r := range ranges {
		box, err := span(r[0], r[1])
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}
