package processing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/xyz"
)

// DirSource reads gdal XYZ files named <FolderName>.txt from a directory
type DirSource struct {
	Dir     string
	Decoder *xyz.Decoder
}

func (s DirSource) Path(tile geometry.Tile) string {
	return filepath.Join(s.Dir, tile.FolderName+".txt")
}

func (s DirSource) ReadTiles(ctx context.Context, tiles []geometry.Tile, out chan<- DecodedTile) error {
	for _, tile := range tiles {
		path := s.Path(tile)
		grid, err := s.decodeFile(path)
		if err != nil {
			return err
		}
		select {
		case out <- DecodedTile{Tile: tile, Path: path, Grid: grid}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s DirSource) decodeFile(path string) (*xyz.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening tile: %w", err)
	}
	defer f.Close()
	grid, err := s.Decoder.DecodeReader(f)
	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return grid, nil
}
