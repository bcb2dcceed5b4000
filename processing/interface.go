package processing

import (
	"context"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/store"
	"github.com/pdok/arena/xyz"
)

// DecodedTile is a tile ready to be stitched into the arena
type DecodedTile struct {
	Tile geometry.Tile
	Path string // identifies the tile source in the metadata log
	Grid *xyz.Grid
}

// Source delivers decoded tiles in the order given, it does not close out
type Source interface {
	ReadTiles(ctx context.Context, tiles []geometry.Tile, out chan<- DecodedTile) error
}

// Target is the write side of the elevation store
type Target interface {
	SetRowHeaders([]float64) error
	AddRowHeaders([]float64) error
	SetColHeaders([]float64) error
	AddColHeaders([]float64) error
	SetRows(grid [][]byte, pixelTop, pixelLeft, maxRowBytes int) error
	AddRows(grid [][]byte, pixelTop, pixelLeft, maxRowBytes int) error
	SetMetadataItem(tilePath string, meta store.TileMetadata) error
}
