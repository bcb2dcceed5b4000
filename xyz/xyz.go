// Package xyz decodes one DEM tile, given as an ordered list of (longitude, latitude, elevation)
// triples in gdal XYZ order (rows north to south, columns west to east), into row headers,
// column headers and rows of 2-byte big-endian elevation cells.
package xyz

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/pdok/arena/logging"
)

const (
	// NoData marks a cell without a (representable) elevation
	NoData = 0xFFFF
	// headerTolerance is the allowed difference (in degrees) between a cell and its column header
	headerTolerance = 1e-9
)

var (
	ErrTruncatedInput = errors.New("truncated input")
	ErrHeaderMismatch = errors.New("column header mismatch")
)

// Point is one line of a gdal XYZ file
type Point struct {
	Lon  float64
	Lat  float64
	Elev float64
}

// Fixture is a sampled cell, replayed against the store after a build to verify it.
// RowID and ColID are tile local when decoded and arena global once stored.
type Fixture struct {
	RowID int     `json:"rowId"`
	ColID int     `json:"colId"`
	Lon   float64 `json:"x"`
	Lat   float64 `json:"y"`
	Elev  int     `json:"z"`
}

// HeaderMismatch is a recoverable decode warning: a cell whose longitude differs from its column header
type HeaderMismatch struct {
	RowID  int
	ColID  int
	Header float64
	Lon    float64
}

func (m HeaderMismatch) Error() string {
	return fmt.Sprintf("%v: cell (%d, %d) has longitude %v, column header is %v", ErrHeaderMismatch, m.RowID, m.ColID, m.Lon, m.Header)
}

func (m HeaderMismatch) Unwrap() error {
	return ErrHeaderMismatch
}

// Grid is a decoded tile
type Grid struct {
	RowHeaders []float64 // latitudes, descending
	ColHeaders []float64 // longitudes, ascending
	Rows       [][]byte  // resolution rows of resolution*2 bytes
	Fixtures   []Fixture
	Warnings   []HeaderMismatch
}

// Elevation returns the decoded elevation of a tile local cell
func (g *Grid) Elevation(rowID, colID int) int {
	return int(binary.BigEndian.Uint16(g.Rows[rowID][2*colID:]))
}

// ProgressFunc is notified of the number of decoded cells
type ProgressFunc func(count, total int)

type Decoder struct {
	resolution    int
	strict        bool
	fixtureRate   float64
	rand          *rand.Rand
	progress      ProgressFunc
	progressEvery int
	logger        *slog.Logger
}

type Option func(*Decoder)

// WithStrict makes a column header mismatch fatal instead of a warning
func WithStrict(strict bool) Option {
	return func(d *Decoder) {
		d.strict = strict
	}
}

// WithFixtureRate sets the probability for every cell to be sampled as a fixture
func WithFixtureRate(rate float64) Option {
	return func(d *Decoder) {
		d.fixtureRate = rate
	}
}

func WithRand(r *rand.Rand) Option {
	return func(d *Decoder) {
		d.rand = r
	}
}

func WithProgress(progress ProgressFunc, every int) Option {
	return func(d *Decoder) {
		d.progress = progress
		d.progressEvery = every
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

func NewDecoder(resolution int, options ...Option) *Decoder {
	d := &Decoder{
		resolution:    resolution,
		progressEvery: 100 * resolution,
		logger:        logging.L(),
	}
	for _, option := range options {
		option(d)
	}
	if d.rand == nil {
		d.rand = rand.New(rand.NewSource(rand.Int63())) //nolint:gosec
	}
	return d
}

func (d *Decoder) Resolution() int {
	return d.resolution
}

// Decode decodes exactly resolution² points, surplus points are ignored.
func (d *Decoder) Decode(points []Point) (*Grid, error) {
	i := 0
	return d.decode(func() (Point, error) {
		if i >= len(points) {
			return Point{}, io.EOF
		}
		i++
		return points[i-1], nil
	})
}

// DecodeReader decodes gdal XYZ text: one whitespace separated "x y z" triple per line
func (d *Decoder) DecodeReader(r io.Reader) (*Grid, error) {
	scanner := bufio.NewScanner(r)
	line := 0
	return d.decode(func() (Point, error) {
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			p, err := parsePoint(text)
			if err != nil {
				return p, fmt.Errorf("line %d: %w", line, err)
			}
			return p, nil
		}
		if err := scanner.Err(); err != nil {
			return Point{}, err
		}
		return Point{}, io.EOF
	})
}

func parsePoint(text string) (Point, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return Point{}, fmt.Errorf("expected 3 fields, got %d: %q", len(fields), text)
	}
	var xyz [3]float64
	for i, field := range fields {
		f, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Point{}, err
		}
		xyz[i] = f
	}
	return Point{Lon: xyz[0], Lat: xyz[1], Elev: xyz[2]}, nil
}

func (d *Decoder) decode(next func() (Point, error)) (*Grid, error) {
	res := d.resolution
	total := res * res
	grid := &Grid{
		RowHeaders: make([]float64, res),
		ColHeaders: make([]float64, res),
		Rows:       make([][]byte, res),
	}
	count := 0
	for rowID := 0; rowID < res; rowID++ {
		row := make([]byte, 2*res)
		for colID := 0; colID < res; colID++ {
			p, err := next()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: got %d of %d points", ErrTruncatedInput, count, total)
			}
			if err != nil {
				return nil, err
			}
			if colID == 0 {
				grid.RowHeaders[rowID] = p.Lat
			}
			if rowID == 0 {
				grid.ColHeaders[colID] = p.Lon
			} else if math.Abs(p.Lon-grid.ColHeaders[colID]) > headerTolerance {
				mismatch := HeaderMismatch{RowID: rowID, ColID: colID, Header: grid.ColHeaders[colID], Lon: p.Lon}
				if d.strict {
					return nil, mismatch
				}
				d.logger.Warn("xyz_column_header_mismatch", "row", rowID, "col", colID, "header", mismatch.Header, "lon", p.Lon)
				grid.Warnings = append(grid.Warnings, mismatch)
			}
			z := encodeElevation(p.Elev)
			binary.BigEndian.PutUint16(row[2*colID:], z)

			if d.fixtureRate > 0 && d.rand.Float64() < d.fixtureRate {
				grid.Fixtures = append(grid.Fixtures, Fixture{RowID: rowID, ColID: colID, Lon: p.Lon, Lat: p.Lat, Elev: int(z)})
			}
			count++
			if d.progress != nil && d.progressEvery > 0 && count%d.progressEvery == 0 {
				d.progress(count, total)
			}
		}
		grid.Rows[rowID] = row
	}
	if d.progress != nil && (d.progressEvery <= 0 || count%d.progressEvery != 0) {
		d.progress(count, total)
	}
	if _, err := next(); err == nil {
		d.logger.Warn("xyz_surplus_points", "expected", total)
	}
	return grid, nil
}

// encodeElevation rounds to whole meters, anything not representable becomes NoData
func encodeElevation(elev float64) uint16 {
	if math.IsNaN(elev) {
		return NoData
	}
	z := math.Round(elev)
	if z < 0 || z >= NoData {
		return NoData
	}
	return uint16(z)
}
