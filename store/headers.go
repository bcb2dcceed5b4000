package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type headerKind string

const (
	rowHeaders headerKind = `rowhdrs`
	colHeaders headerKind = `colhdrs`
)

// SetRowHeaders stores the latitudes of all arena rows so far, replacing the previous ones
func (s *Store) SetRowHeaders(headers []float64) error {
	return s.setHeaders(rowHeaders, headers)
}

// AddRowHeaders appends latitudes to the current row headers
func (s *Store) AddRowHeaders(headers []float64) error {
	return s.addHeaders(rowHeaders, headers)
}

func (s *Store) RowHeaders() ([]float64, error) {
	return s.headers(rowHeaders)
}

// SetColHeaders stores the longitudes of all arena columns so far, replacing the previous ones
func (s *Store) SetColHeaders(headers []float64) error {
	return s.setHeaders(colHeaders, headers)
}

// AddColHeaders appends longitudes to the current column headers
func (s *Store) AddColHeaders(headers []float64) error {
	return s.addHeaders(colHeaders, headers)
}

func (s *Store) ColHeaders() ([]float64, error) {
	return s.headers(colHeaders)
}

func (s *Store) setHeaders(kind headerKind, headers []float64) error {
	blob, err := msgpack.Marshal(headers)
	if err != nil {
		return err
	}
	return s.inTx(func(tx *sql.Tx) error {
		return insertHeaders(tx, kind, blob)
	})
}

func (s *Store) addHeaders(kind headerKind, headers []float64) error {
	return s.inTx(func(tx *sql.Tx) error {
		current, err := latestHeaders(tx.QueryRow, kind)
		if err != nil {
			return err
		}
		blob, err := msgpack.Marshal(append(current, headers...))
		if err != nil {
			return err
		}
		return insertHeaders(tx, kind, blob)
	})
}

func (s *Store) headers(kind headerKind) ([]float64, error) {
	return latestHeaders(s.handle.QueryRow, kind)
}

func insertHeaders(tx *sql.Tx, kind headerKind, blob []byte) error {
	query := fmt.Sprintf(`INSERT INTO %[1]s (%[1]s) VALUES (?);`, kind)
	if _, err := tx.Exec(query, blob); err != nil {
		return fmt.Errorf("could not store %s: %w", kind, err)
	}
	return nil
}

func latestHeaders(queryRow func(string, ...any) *sql.Row, kind headerKind) ([]float64, error) {
	query := fmt.Sprintf(`SELECT %[1]s FROM %[1]s ORDER BY id DESC LIMIT 1;`, kind)
	var blob []byte
	err := queryRow(query).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, kind)
	}
	if err != nil {
		return nil, err
	}
	var headers []float64
	if err = msgpack.Unmarshal(blob, &headers); err != nil {
		return nil, fmt.Errorf("could not decode %s: %w", kind, err)
	}
	return headers, nil
}
