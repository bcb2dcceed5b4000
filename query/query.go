// Package query answers point queries against the stitched arena: nearest and inverse distance
// weighted elevation, and the compass direction plus next cell elevation along a flight.
//
// An Engine owns the direction state of one flight, so use one Engine per flight session.
package query

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/logging"
	"github.com/pdok/arena/mathhelp"
	"github.com/pdok/arena/rowcache"
	"github.com/pdok/arena/xyz"
)

var ErrOutOfScope = errors.New("out of scope")

// Store is the read side of the elevation store
type Store interface {
	RowHeaders() ([]float64, error)
	ColHeaders() ([]float64, error)
	Row(rowID int) ([]byte, error)
	ArenaBoundingBox() (geometry.BoundingBox, error)
	AddWriteListener(func()) (remove func())
}

// Cell is one cell of the arena matrix
type Cell struct {
	Elevation int
	RowID     int
	ColID     int
	Lat       float64
	Long      float64
}

type Engine struct {
	store    Store
	cache    *rowcache.Cache
	logger   *slog.Logger
	unlisten func()

	mu         sync.Mutex
	stale      bool
	bbox       geometry.BoundingBox
	rowHeaders []float64
	colHeaders []float64
	rowFactor  float64
	colFactor  float64

	previous *[2]float64 // lat, long of the previous Direction call
}

type Option func(*Engine)

func WithCacheSize(size int) Option {
	return func(e *Engine) {
		e.cache = rowcache.New(size)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine returns an engine that loads the arena from the store on first use,
// and again after any write to the store. Close the engine when the flight session ends.
func NewEngine(store Store, options ...Option) *Engine {
	e := &Engine{
		store:  store,
		cache:  rowcache.New(rowcache.DefaultCapacity),
		logger: logging.L(),
		stale:  true,
	}
	for _, option := range options {
		option(e)
	}
	e.unlisten = store.AddWriteListener(e.invalidate)
	return e
}

// Close stops listening for store writes and drops the cached rows.
// The store itself stays open.
func (e *Engine) Close() {
	e.unlisten()
	e.cache.Clear()
}

func (e *Engine) invalidate() {
	e.cache.Clear()
	e.mu.Lock()
	e.stale = true
	e.mu.Unlock()
}

// arena is a consistent snapshot of what the engine loaded from the store
type arena struct {
	bbox       geometry.BoundingBox
	rowHeaders []float64
	colHeaders []float64
	rowFactor  float64
	colFactor  float64
}

func (e *Engine) load() (arena, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stale {
		bbox, err := e.store.ArenaBoundingBox()
		if err != nil {
			return arena{}, err
		}
		rowHeaders, err := e.store.RowHeaders()
		if err != nil {
			return arena{}, err
		}
		colHeaders, err := e.store.ColHeaders()
		if err != nil {
			return arena{}, err
		}
		e.bbox = bbox
		e.rowHeaders = rowHeaders
		e.colHeaders = colHeaders
		e.rowFactor = float64(len(rowHeaders)) / float64(bbox.RowSpan())
		e.colFactor = float64(len(colHeaders)) / float64(bbox.ColSpan())
		e.stale = false
		e.logger.Debug("query_arena_loaded", "bbox", bbox.String(), "rows", len(rowHeaders), "cols", len(colHeaders))
	}
	return arena{e.bbox, e.rowHeaders, e.colHeaders, e.rowFactor, e.colFactor}, nil
}

// InScope reports whether (lat, long) lies within the arena, edges included
func (e *Engine) InScope(lat, long float64) bool {
	a, err := e.load()
	if err != nil {
		e.logger.Error("query_load_failed", "error", err)
		return false
	}
	return a.bbox.Contains(lat, long)
}

// GridIndex quantizes (lat, long) to the nearest arena cell. The result is not clamped.
func (e *Engine) GridIndex(lat, long float64) (rowID, colID int, err error) {
	a, err := e.load()
	if err != nil {
		return 0, 0, err
	}
	rowID, colID = a.gridIndex(lat, long)
	return rowID, colID, nil
}

func (a arena) gridIndex(lat, long float64) (rowID, colID int) {
	rowID = mathhelp.RoundHalfAway((float64(a.bbox.Top) - lat) * a.rowFactor)
	colID = mathhelp.RoundHalfAway((long - float64(a.bbox.Left)) * a.colFactor)
	return rowID, colID
}

// NearestElevation returns the cell nearest to (lat, long).
// A query exactly on the south or east edge of the arena is served by the last row or column.
func (e *Engine) NearestElevation(lat, long float64) (Cell, error) {
	a, err := e.load()
	if err != nil {
		return Cell{}, err
	}
	if !a.bbox.Contains(lat, long) {
		e.logger.Warn("query_out_of_scope", "lat", lat, "long", long)
		return Cell{}, fmt.Errorf("%w: (%v, %v)", ErrOutOfScope, lat, long)
	}
	rowID, colID := a.gridIndex(lat, long)
	rowID = min(rowID, len(a.rowHeaders)-1)
	colID = min(colID, len(a.colHeaders)-1)
	cell, err := e.cell(a, rowID, colID)
	if err != nil {
		e.logger.Error("query_nearest_failed", "lat", lat, "long", long, "row", rowID, "col", colID, "error", err)
		return Cell{}, err
	}
	return cell, nil
}

// Elevation returns the nearest elevation in meters, -1 when there is none
func (e *Engine) Elevation(lat, long float64) int {
	cell, err := e.NearestElevation(lat, long)
	if err != nil {
		return -1
	}
	return cell.Elevation
}

// WeightedElevation is the inverse distance weighted elevation of the nearest cell and its 8 neighbours.
// When any neighbour is missing or has no data, or the query point coincides with a cell center,
// the nearest elevation is returned instead.
func (e *Engine) WeightedElevation(lat, long float64) (int, error) {
	nearest, err := e.NearestElevation(lat, long)
	if err != nil {
		return -1, err
	}
	a, err := e.load()
	if err != nil {
		return -1, err
	}

	var sumProducts, sumWeights float64
	for dRow := -1; dRow <= 1; dRow++ {
		for dCol := -1; dCol <= 1; dCol++ {
			cell, err := e.cell(a, nearest.RowID+dRow, nearest.ColID+dCol)
			if err != nil {
				e.logger.Debug("query_weighting_fallback", "lat", lat, "long", long, "reason", err)
				return nearest.Elevation, nil
			}
			if cell.Elevation == xyz.NoData {
				e.logger.Debug("query_weighting_fallback", "lat", lat, "long", long, "reason", "no data", "row", cell.RowID, "col", cell.ColID)
				return nearest.Elevation, nil
			}
			distance := mathhelp.Haversine(lat, long, cell.Lat, cell.Long)
			if distance == 0 {
				return nearest.Elevation, nil
			}
			weight := 1 / distance
			sumProducts += float64(cell.Elevation) * weight
			sumWeights += weight
		}
	}
	return int(sumProducts / sumWeights), nil
}

// cell reads one cell through the row cache
func (e *Engine) cell(a arena, rowID, colID int) (Cell, error) {
	if rowID < 0 || rowID >= len(a.rowHeaders) || colID < 0 || colID >= len(a.colHeaders) {
		return Cell{}, fmt.Errorf("%w: cell (%d, %d)", ErrOutOfScope, rowID, colID)
	}
	row, ok := e.cache.Get(rowID)
	if !ok {
		var err error
		row, err = e.store.Row(rowID)
		if err != nil {
			return Cell{}, err
		}
		e.cache.Put(rowID, row)
	}
	offset := geometry.BytesPerCell * colID
	if offset+geometry.BytesPerCell > len(row) {
		return Cell{}, fmt.Errorf("%w: row %d has no column %d", ErrOutOfScope, rowID, colID)
	}
	return Cell{
		Elevation: int(binary.BigEndian.Uint16(row[offset:])),
		RowID:     rowID,
		ColID:     colID,
		Lat:       a.rowHeaders[rowID],
		Long:      a.colHeaders[colID],
	}, nil
}
