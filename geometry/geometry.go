// Package geometry derives the whole-degree arena bounding box from arbitrary corner coordinates
// and partitions it into 1x1 degree tiles with their pixel offsets in the stitched arena matrix.
//
// Tiles follow the Copernicus GLO-90 layout: one tile per degree, DefaultResolution cells per side,
// and the folder of a tile is named after its lower left corner.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"

	"github.com/pdok/arena/mathhelp"
)

const (
	// DefaultResolution is the number of cells per tile side (GLO-90, approx. 90 meters)
	DefaultResolution = 1200
	// ResolutionCode is the resolution in the Copernicus folder names ("should be 90, but isn't")
	ResolutionCode = 30
	// BytesPerCell is the size of one elevation cell in a row blob
	BytesPerCell = 2
)

var ErrInvalidGeometry = errors.New("invalid geometry")

// BoundingBox in whole degrees. Top and Right are exclusive edges of the last tile.
type BoundingBox struct {
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// Tile is one 1x1 degree source unit and its upper left offset (in cells) in the arena matrix
type Tile struct {
	BBox       BoundingBox
	PixelTop   int
	PixelLeft  int
	FolderName string
}

// ComputeBBox rounds north/east up and south/west down to whole degrees.
func ComputeBBox(north, south, west, east float64) (BoundingBox, error) {
	bbox := BoundingBox{
		Top:    int(math.Ceil(north)),
		Bottom: int(math.Floor(south)),
		Left:   int(math.Floor(west)),
		Right:  int(math.Ceil(east)),
	}
	return bbox, bbox.Validate()
}

// Validate returns ErrInvalidGeometry for a bounding box with zero or negative area
func (b BoundingBox) Validate() error {
	if b.Top <= b.Bottom || b.Right <= b.Left {
		return fmt.Errorf("%w: bounding box %+v has no area", ErrInvalidGeometry, b)
	}
	return nil
}

func (b BoundingBox) RowSpan() int { return b.Top - b.Bottom }

func (b BoundingBox) ColSpan() int { return b.Right - b.Left }

// TileCount is the number of 1x1 degree tiles covering the bounding box
func (b BoundingBox) TileCount() int {
	return b.RowSpan() * b.ColSpan()
}

// Union returns the smallest bounding box containing both b and o
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Top:    max(b.Top, o.Top),
		Bottom: min(b.Bottom, o.Bottom),
		Left:   min(b.Left, o.Left),
		Right:  max(b.Right, o.Right),
	}
}

// Contains reports whether (lat, long) lies inside the bounding box, edges included.
func (b BoundingBox) Contains(lat, long float64) bool {
	return mathhelp.BetweenInc(lat, float64(b.Bottom), float64(b.Top)) &&
		mathhelp.BetweenInc(long, float64(b.Left), float64(b.Right))
}

// Extent as minx (left), miny (bottom), maxx (right), maxy (top)
func (b BoundingBox) Extent() *geom.Extent {
	return &geom.Extent{float64(b.Left), float64(b.Bottom), float64(b.Right), float64(b.Top)}
}

// Polygon is the footprint of the bounding box, counterclockwise from the lower left corner
func (b BoundingBox) Polygon() geom.Polygon {
	return geom.Polygon{b.Extent().Vertices()}
}

// BoundingBoxOf returns the whole degree bounding box around a geometry
func BoundingBoxOf(g geom.Geometry) (BoundingBox, error) {
	ext, err := geom.NewExtentFromGeometry(g)
	if err != nil {
		return BoundingBox{}, err
	}
	return ComputeBBox(ext.MaxY(), ext.MinY(), ext.MinX(), ext.MaxX())
}

func (b BoundingBox) String() string {
	return wkt.MustEncode(b.Polygon())
}

// MaxRowBytes is the byte capacity of one row blob spanning the full east-west extent
func MaxRowBytes(bbox BoundingBox, resolution int) int {
	return bbox.ColSpan() * resolution * BytesPerCell
}

// EnumerateTiles lists the tiles of the bounding box rows from north to south
// and within a row from west to east. This is the only order the store accepts.
func EnumerateTiles(bbox BoundingBox, resolution int) []Tile {
	tiles := make([]Tile, 0, max(bbox.TileCount(), 0))
	northIterations := 0
	for lat := bbox.Top - 1; lat >= bbox.Bottom; lat-- {
		eastIterations := 0
		for long := bbox.Left; long < bbox.Right; long++ {
			tiles = append(tiles, Tile{
				BBox:       BoundingBox{Top: lat + 1, Bottom: lat, Left: long, Right: long + 1},
				PixelTop:   northIterations * resolution,
				PixelLeft:  eastIterations * resolution,
				FolderName: FolderName(lat, long),
			})
			eastIterations++
		}
		northIterations++
	}
	return tiles
}

// FolderName of the tile with its lower left corner at (lat, long).
// E.g. Copernicus_DSM_COG_30_N47_00_E009_00_DEM
func FolderName(lat, long int) string {
	northing, easting := "N", "E"
	if lat < 0 {
		northing = "S"
	}
	if long < 0 {
		easting = "W"
	}
	return fmt.Sprintf("Copernicus_DSM_COG_%d_%s%02d_00_%s%03d_00_DEM",
		ResolutionCode, northing, abs(lat), easting, abs(long))
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
