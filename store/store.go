// Package store persists the stitched elevation matrix in a GeoPackage: one growable blob per
// arena row, the row and column coordinate headers, an append-only metadata log with one item per
// ingested tile, and a feature table with the footprint of every tile.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/mattn/go-sqlite3"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/arena/logging"
	"github.com/pdok/arena/mapslicehelp"
)

const (
	// SRS of the tiles feature table, WGS 84
	SRS = 4326

	tilesTable = `tiles`
)

var (
	ErrIllegalCall      = errors.New("illegal call")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotFound         = errors.New("not found")
	ErrEmptyMetadata    = errors.New("empty metadata")
	ErrOutOfSequence    = errors.New("out of sequence")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rowhdrs (id INTEGER PRIMARY KEY AUTOINCREMENT, rowhdrs BLOB NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS colhdrs (id INTEGER PRIMARY KEY AUTOINCREMENT, colhdrs BLOB NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS rows (id INTEGER PRIMARY KEY, cap INTEGER NOT NULL, len INTEGER NOT NULL, row BLOB NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS metadata (id INTEGER PRIMARY KEY AUTOINCREMENT, tilepath TEXT NOT NULL, tileinfo TEXT NOT NULL);`,
	`CREATE TABLE IF NOT EXISTS "` + tilesTable + `" (fid INTEGER PRIMARY KEY AUTOINCREMENT, tilepath TEXT NOT NULL, geom POLYGON);`,
}

// Store is the GeoPackage backed elevation store.
// It supports a single writer, readers may run concurrently with it.
type Store struct {
	handle *gpkg.Handle

	mu           sync.RWMutex
	listeners    *orderedmap.OrderedMap[int, func()]
	nextListener int
}

// Open opens or creates the GeoPackage at the given path
func Open(file string) (*Store, error) {
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage %s: %w", file, err)
	}
	s := &Store{handle: handle, listeners: orderedmap.New[int, func()]()}
	if err = s.init(); err != nil {
		handle.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	for _, query := range schema {
		if _, err := s.handle.Exec(query); err != nil {
			return fmt.Errorf("error creating table: %w", err)
		}
	}

	var registered int
	err := s.handle.QueryRow(`SELECT count(*) FROM gpkg_geometry_columns WHERE table_name = ?;`, tilesTable).Scan(&registered)
	if err != nil {
		return err
	}
	if registered > 0 {
		return nil
	}
	err = s.handle.AddGeometryTable(gpkg.TableDescription{
		Name:          tilesTable,
		ShortName:     tilesTable,
		Description:   "footprints of the ingested DEM tiles",
		GeometryField: "geom",
		GeometryType:  gpkg.Polygon,
		SRS:           SRS,
		//
		Z: gpkg.Prohibited,
		M: gpkg.Prohibited,
	})
	if err != nil {
		return fmt.Errorf("error adding geometry table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.handle.Close()
}

// AddWriteListener registers a function that is called after every successful write.
// The returned function unregisters it, calling it more than once is a no-op.
func (s *Store) AddWriteListener(f func()) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners.Set(id, f)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners.Delete(id)
	}
}

// WriteListeners is the number of registered write listeners
func (s *Store) WriteListeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listeners.Len()
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := mapslicehelp.OrderedMapValues(s.listeners)
	s.mu.RUnlock()
	for _, f := range listeners {
		f()
	}
}

// inTx runs f in a transaction, commits when f succeeds and notifies the write listeners
func (s *Store) inTx(f func(tx *sql.Tx) error) error {
	tx, err := s.handle.Begin()
	if err != nil {
		return fmt.Errorf("could not start a transaction: %w", err)
	}
	if err = f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.L().Error("store_rollback_failed", "error", rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit: %w", err)
	}
	s.notify()
	return nil
}

// isConstraint reports whether err is a SQLite constraint violation
func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
