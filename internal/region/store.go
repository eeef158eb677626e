// Package region loads the administrative boundaries and energy sites and
// answers the spatial questions of the map: which region a click falls in,
// where to fit the view, and what to grey out.
//
// Shapefiles are read as EPSG:4326; their .prj is not consulted.
package region

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

// ErrUnknownRegion is returned for a name that no feature carries.
var ErrUnknownRegion = errors.New("unknown region")

// ClickTolerance is the half-width, in degrees, of the box tested around a
// map click.
const ClickTolerance = 0.01

// Region is one feature of the boundary file. Several features may share a
// name.
type Region struct {
	Name  string
	Shape geom.Polygonal
}

// indexed is a feature in the R-tree, tagged with its file position.
type indexed struct {
	geom.Polygonal
	order int
}

// Store is an immutable, query-ready set of regions.
type Store struct {
	regions []Region
	names   []string
	byName  map[string][]int
	index   *rtree.Rtree
	total   domain.Bounds

	maskOnce sync.Once
	allMask  geom.Polygon
}

// Load reads the polygons of a boundary shapefile, naming each feature by
// nameField.
func Load(path, nameField string) (*Store, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open region shapefile: %w", err)
	}
	defer dec.Close()

	var regions []Region
	for {
		g, fields, more := dec.DecodeRowFields(nameField)
		if !more {
			break
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			continue
		}
		regions = append(regions, Region{Name: cleanField(fields[nameField]), Shape: poly})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode region shapefile %s: %w", path, err)
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("region shapefile %s has no polygons", path)
	}
	return NewStore(regions), nil
}

// cleanField strips the padding DBF leaves around attribute values.
func cleanField(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// NewStore indexes regions in the given order.
func NewStore(regions []Region) *Store {
	s := &Store{
		regions: regions,
		byName:  make(map[string][]int),
		index:   rtree.NewTree(25, 50),
	}
	total := geom.NewBounds()
	for i, r := range regions {
		s.index.Insert(&indexed{Polygonal: r.Shape, order: i})
		total.Extend(r.Shape.Bounds())
		if r.Name == "" {
			continue
		}
		if _, seen := s.byName[r.Name]; !seen {
			s.names = append(s.names, r.Name)
		}
		s.byName[r.Name] = append(s.byName[r.Name], i)
	}
	sort.Strings(s.names)
	if len(regions) > 0 {
		s.total = toBounds(total)
	}
	return s
}

// Names returns the sorted, unique, non-blank region names.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Has reports whether name is a known region.
func (s *Store) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Lookup returns the region a map click at (lat, lon) selects: the first
// feature in file order that contains the point or overlaps the
// ClickTolerance box around it. Blank-named features never match.
func (s *Store) Lookup(lat, lon float64) (string, bool) {
	pt := geom.Point{X: lon, Y: lat}
	box := &geom.Bounds{
		Min: geom.Point{X: lon - ClickTolerance, Y: lat - ClickTolerance},
		Max: geom.Point{X: lon + ClickTolerance, Y: lat + ClickTolerance},
	}
	for _, c := range s.candidates(box) {
		if pt.Within(c.Polygonal) != geom.Outside {
			return s.regions[c.order].Name, true
		}
		if isect := c.Polygonal.Intersection(box); isect != nil && math.Abs(isect.Area()) > 0 {
			return s.regions[c.order].Name, true
		}
	}
	return "", false
}

// Locate returns the region strictly containing the point, edges included.
func (s *Store) Locate(lat, lon float64) (string, bool) {
	pt := geom.Point{X: lon, Y: lat}
	for _, c := range s.candidates(&geom.Bounds{Min: pt, Max: pt}) {
		if pt.Within(c.Polygonal) != geom.Outside {
			return s.regions[c.order].Name, true
		}
	}
	return "", false
}

// candidates returns the named features whose boxes intersect b, in file order.
func (s *Store) candidates(b *geom.Bounds) []*indexed {
	var out []*indexed
	for _, g := range s.index.SearchIntersect(b) {
		c := g.(*indexed)
		if s.regions[c.order].Name != "" {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Shape returns the union of the features named name.
func (s *Store) Shape(name string) (geom.Polygonal, error) {
	idx, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	if len(idx) == 1 {
		return s.regions[idx[0]].Shape, nil
	}
	var u geom.Polygon
	for _, i := range idx {
		u = union(u, s.regions[i].Shape)
	}
	return u, nil
}

func union(acc geom.Polygon, p geom.Polygonal) geom.Polygon {
	if acc == nil {
		polys := p.Polygons()
		acc = polys[0]
		for _, q := range polys[1:] {
			acc = acc.Union(q)
		}
		return acc
	}
	return acc.Union(p)
}

// Bounds returns the bounding box of the features named name.
func (s *Store) Bounds(name string) (domain.Bounds, error) {
	idx, ok := s.byName[name]
	if !ok {
		return domain.Bounds{}, fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	b := geom.NewBounds()
	for _, i := range idx {
		b.Extend(s.regions[i].Shape.Bounds())
	}
	return toBounds(b), nil
}

// TotalBounds returns the bounding box of every feature.
func (s *Store) TotalBounds() domain.Bounds {
	return s.total
}

// FitBounds returns the view box for a selection: the selected region, or
// every region when name is empty or unknown.
func (s *Store) FitBounds(name string) domain.Bounds {
	if b, err := s.Bounds(name); err == nil {
		return b
	}
	return s.total
}

var world = geom.Polygon{{
	{X: -180, Y: -90}, {X: 180, Y: -90}, {X: 180, Y: 90}, {X: -180, Y: 90}, {X: -180, Y: -90},
}}

// Mask returns the world with the selected region cut out. An empty or
// unknown name cuts out every region instead.
func (s *Store) Mask(name string) geom.Polygon {
	if shape, err := s.Shape(name); err == nil {
		return world.Difference(shape)
	}
	s.maskOnce.Do(func() {
		var all geom.Polygon
		for _, r := range s.regions {
			all = union(all, r.Shape)
		}
		if all == nil {
			s.allMask = world
			return
		}
		s.allMask = world.Difference(all)
	})
	return s.allMask
}

func toBounds(b *geom.Bounds) domain.Bounds {
	return domain.Bounds{West: b.Min.X, South: b.Min.Y, East: b.Max.X, North: b.Max.Y}
}
