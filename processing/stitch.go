package processing

import (
	"fmt"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/store"
	"github.com/pdok/arena/xyz"
)

// Stitcher writes decoded tiles into the target, west to east within a row-block
// and row-block by row-block from north to south. Any other order is refused.
type Stitcher struct {
	target      Target
	resolution  int
	maxRowBytes int

	started   bool
	pixelTop  int
	pixelLeft int
	origin    geometry.BoundingBox // first tile, the north west corner of the arena
	previous  geometry.BoundingBox
}

func NewStitcher(target Target, resolution, maxRowBytes int) *Stitcher {
	return &Stitcher{target: target, resolution: resolution, maxRowBytes: maxRowBytes}
}

// arenaCols is the number of cells in a full arena row
func (s *Stitcher) arenaCols() int {
	return s.maxRowBytes / geometry.BytesPerCell
}

// checkSequence verifies that tile is the successor of the previously stitched tile,
// both by its pixel offsets and by its bounding box
func (s *Stitcher) checkSequence(tile geometry.Tile) error {
	var wantTop, wantLeft int
	switch {
	case !s.started:
	case s.pixelLeft+s.resolution < s.arenaCols():
		wantTop, wantLeft = s.pixelTop, s.pixelLeft+s.resolution
	default:
		wantTop, wantLeft = s.pixelTop+s.resolution, 0
	}
	if tile.PixelTop != wantTop || tile.PixelLeft != wantLeft {
		return fmt.Errorf("%w: tile %s at pixel (%d, %d), expected (%d, %d)",
			store.ErrOutOfSequence, tile.FolderName, tile.PixelTop, tile.PixelLeft, wantTop, wantLeft)
	}

	bbox := tile.BBox
	if bbox.RowSpan() != 1 || bbox.ColSpan() != 1 {
		return fmt.Errorf("%w: tile %s spans %s, expected 1x1 degree",
			store.ErrOutOfSequence, tile.FolderName, bbox)
	}
	if !s.started {
		return nil
	}
	var adjacent bool
	if wantLeft == 0 {
		// next row-block starts below the arena's west edge
		adjacent = bbox.Bottom == s.previous.Bottom-1 && bbox.Left == s.origin.Left
	} else {
		adjacent = bbox.Bottom == s.previous.Bottom && bbox.Left == s.previous.Left+1
	}
	if !adjacent {
		return fmt.Errorf("%w: tile %s spans %s, which does not follow %s",
			store.ErrOutOfSequence, tile.FolderName, bbox, s.previous)
	}
	return nil
}

// Stitch writes one tile: headers, rows and metadata
func (s *Stitcher) Stitch(dt DecodedTile) error {
	tile, grid := dt.Tile, dt.Grid
	if err := s.checkSequence(tile); err != nil {
		return err
	}
	if len(grid.Rows) != s.resolution || len(grid.ColHeaders) != s.resolution {
		return fmt.Errorf("tile %s has %dx%d cells, expected %dx%d",
			tile.FolderName, len(grid.Rows), len(grid.ColHeaders), s.resolution, s.resolution)
	}

	var err error
	switch {
	case tile.PixelTop == 0 && tile.PixelLeft == 0:
		err = s.first(grid)
	case tile.PixelTop == 0:
		// column headers only grow while stitching the first row-block
		if err = s.target.AddColHeaders(grid.ColHeaders); err == nil {
			err = s.target.AddRows(grid.Rows, tile.PixelTop, tile.PixelLeft, s.maxRowBytes)
		}
	case tile.PixelLeft == 0:
		if err = s.target.AddRowHeaders(grid.RowHeaders); err == nil {
			err = s.target.SetRows(grid.Rows, tile.PixelTop, tile.PixelLeft, s.maxRowBytes)
		}
	default:
		err = s.target.AddRows(grid.Rows, tile.PixelTop, tile.PixelLeft, s.maxRowBytes)
	}
	if err != nil {
		return fmt.Errorf("error stitching tile %s: %w", tile.FolderName, err)
	}

	fixtures := globalFixtures(grid.Fixtures, tile)
	if err = s.target.SetMetadataItem(dt.Path, store.NewTileMetadata(tile.BBox, fixtures)); err != nil {
		return fmt.Errorf("error storing metadata of tile %s: %w", tile.FolderName, err)
	}
	if !s.started {
		s.origin = tile.BBox
	}
	s.started = true
	s.pixelTop, s.pixelLeft = tile.PixelTop, tile.PixelLeft
	s.previous = tile.BBox
	return nil
}

func (s *Stitcher) first(grid *xyz.Grid) error {
	if err := s.target.SetRowHeaders(grid.RowHeaders); err != nil {
		return err
	}
	if err := s.target.SetColHeaders(grid.ColHeaders); err != nil {
		return err
	}
	return s.target.SetRows(grid.Rows, 0, 0, s.maxRowBytes)
}

// globalFixtures converts tile local fixtures to arena row and column ids
func globalFixtures(fixtures []xyz.Fixture, tile geometry.Tile) []xyz.Fixture {
	if len(fixtures) == 0 {
		return nil
	}
	global := make([]xyz.Fixture, len(fixtures))
	for i, f := range fixtures {
		f.RowID += tile.PixelTop
		f.ColID += tile.PixelLeft
		global[i] = f
	}
	return global
}
