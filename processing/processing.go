// Package processing takes care of the logistics around ingesting tiles into a Target:
// reading and decoding them in one goroutine, stitching them in another, in tile order.
package processing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/logging"
	"github.com/pdok/arena/query"
	"github.com/pdok/arena/store"
	"github.com/pdok/arena/xyz"
)

// Summary of a build
type Summary struct {
	Tiles    int
	Rows     int
	Fixtures int
	Warnings int
	Duration time.Duration
}

// readTilesFromSource reads the tiles and closes the channel when done
func readTilesFromSource(ctx context.Context, source Source, tiles []geometry.Tile, decoded chan<- DecodedTile) error {
	defer close(decoded)
	return source.ReadTiles(ctx, tiles, decoded)
}

// stitchTiles stitches the decoded tiles one by one, it stops at the first error
func stitchTiles(decoded <-chan DecodedTile, stitcher *Stitcher, summary *Summary) error {
	for dt := range decoded {
		started := time.Now()
		if err := stitcher.Stitch(dt); err != nil {
			return err
		}
		summary.Tiles++
		summary.Rows += len(dt.Grid.Rows)
		summary.Fixtures += len(dt.Grid.Fixtures)
		summary.Warnings += len(dt.Grid.Warnings)
		logging.L().Info("tile_stitched", "tile", dt.Tile.FolderName,
			"pixel_top", dt.Tile.PixelTop, "pixel_left", dt.Tile.PixelLeft,
			"fixtures", len(dt.Grid.Fixtures), "duration_ms", time.Since(started).Milliseconds())
	}
	return nil
}

// Build ingests the tiles, in the given order, into the target.
// Tiles are read ahead by one while the previous one is stitched. Stitching itself is sequential.
func Build(ctx context.Context, source Source, target Target, tiles []geometry.Tile, resolution, maxRowBytes int) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	decoded := make(chan DecodedTile)
	var readErr error
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr = readTilesFromSource(ctx, source, tiles, decoded)
	}()

	var summary Summary
	stitchErr := stitchTiles(decoded, NewStitcher(target, resolution, maxRowBytes), &summary)
	if stitchErr != nil {
		cancel()
		for range decoded {
			// drain, the reader stops on the cancelled context
		}
	}
	wg.Wait()
	summary.Duration = time.Since(started)

	if stitchErr != nil {
		return summary, stitchErr
	}
	if readErr != nil {
		return summary, fmt.Errorf("error reading tiles: %w", readErr)
	}
	if summary.Tiles != len(tiles) {
		return summary, fmt.Errorf("stitched %d of %d tiles", summary.Tiles, len(tiles))
	}
	logging.L().Info("build_done", "tiles", summary.Tiles, "rows", summary.Rows,
		"fixtures", summary.Fixtures, "warnings", summary.Warnings, "duration", summary.Duration.String())
	return summary, nil
}

// Failure is a fixture the store does not reproduce
type Failure struct {
	TilePath string
	Fixture  xyz.Fixture
	Got      query.Cell
	Err      error
}

// Report of a verification
type Report struct {
	Passed   int
	Failed   int
	Failures []Failure
}

func (r Report) OK() bool {
	return r.Failed == 0
}

// Elevations is the query side used for verification
type Elevations interface {
	NearestElevation(lat, long float64) (query.Cell, error)
}

// Verify replays the fixtures of all metadata items against the query engine.
// A fixture passes when its coordinates map to its own cell and the cell holds its elevation.
func Verify(items []store.MetadataItem, elevations Elevations) Report {
	var report Report
	for _, item := range items {
		for _, f := range item.Meta.UnitTests {
			cell, err := elevations.NearestElevation(f.Lat, f.Lon)
			if err == nil && cell.RowID == f.RowID && cell.ColID == f.ColID && cell.Elevation == f.Elev {
				report.Passed++
				continue
			}
			report.Failed++
			report.Failures = append(report.Failures, Failure{TilePath: item.TilePath, Fixture: f, Got: cell, Err: err})
			logging.L().Warn("fixture_failed", "tile", item.TilePath, "row", f.RowID, "col", f.ColID,
				"want", f.Elev, "got", cell.Elevation, "got_row", cell.RowID, "got_col", cell.ColID, "error", err)
		}
	}
	return report
}
