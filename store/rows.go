package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// SetRows stores the rows of the first (westernmost) tile of a row-block.
// Every row blob is allocated at maxRowBytes, the full east-west extent of the arena,
// with the tile's data at offset 0.
func (s *Store) SetRows(grid [][]byte, pixelTop, pixelLeft, maxRowBytes int) error {
	if pixelLeft != 0 {
		return fmt.Errorf("%w: SetRows at pixel left %d, use AddRows", ErrIllegalCall, pixelLeft)
	}
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT INTO rows (id, cap, len, row) VALUES (?, ?, ?, ?);`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, data := range grid {
			rowID := pixelTop + i
			if len(data) > maxRowBytes {
				return fmt.Errorf("%w: row %d has %d bytes, max is %d", ErrCapacityExceeded, rowID, len(data), maxRowBytes)
			}
			blob := make([]byte, maxRowBytes)
			copy(blob, data)
			if _, err = stmt.Exec(rowID, maxRowBytes, len(data), blob); err != nil {
				if isConstraint(err) {
					return fmt.Errorf("%w: row %d already exists", ErrOutOfSequence, rowID)
				}
				return fmt.Errorf("could not insert row %d: %w", rowID, err)
			}
		}
		return nil
	})
}

// AddRows stitches the rows of a tile east of the previous one onto the existing row blobs,
// at byte offset 2*pixelLeft. Rows only grow by appending: the offset must equal the declared length.
func (s *Store) AddRows(grid [][]byte, pixelTop, pixelLeft, maxRowBytes int) error {
	if pixelLeft == 0 {
		return fmt.Errorf("%w: AddRows at pixel left 0, use SetRows", ErrIllegalCall)
	}
	offset := 2 * pixelLeft
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE rows SET len = ?, row = ? WHERE id = ?;`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, data := range grid {
			rowID := pixelTop + i
			capacity, length, blob, err := selectRow(tx.QueryRow, rowID)
			if err != nil {
				return err
			}
			newLength := offset + len(data)
			if newLength > capacity || newLength > maxRowBytes {
				return fmt.Errorf("%w: row %d would grow to %d bytes, capacity is %d", ErrCapacityExceeded, rowID, newLength, min(capacity, maxRowBytes))
			}
			if offset != length {
				return fmt.Errorf("%w: row %d has length %d, cannot write at offset %d", ErrOutOfSequence, rowID, length, offset)
			}
			copy(blob[offset:], data)
			if _, err = stmt.Exec(newLength, blob, rowID); err != nil {
				return fmt.Errorf("could not update row %d: %w", rowID, err)
			}
		}
		return nil
	})
}

// Row returns the declared length prefix of the row blob
func (s *Store) Row(rowID int) ([]byte, error) {
	_, length, blob, err := selectRow(s.handle.QueryRow, rowID)
	if err != nil {
		return nil, err
	}
	return blob[:length], nil
}

// RowCount returns the number of stored rows
func (s *Store) RowCount() (int, error) {
	var n int
	err := s.handle.QueryRow(`SELECT count(*) FROM rows;`).Scan(&n)
	return n, err
}

func selectRow(queryRow func(string, ...any) *sql.Row, rowID int) (capacity, length int, blob []byte, err error) {
	err = queryRow(`SELECT cap, len, row FROM rows WHERE id = ?;`, rowID).Scan(&capacity, &length, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil, fmt.Errorf("%w: row %d", ErrNotFound, rowID)
	}
	if err != nil {
		return 0, 0, nil, err
	}
	if length > len(blob) || capacity != len(blob) {
		return 0, 0, nil, fmt.Errorf("row %d is corrupt: cap %d, len %d, %d bytes", rowID, capacity, length, len(blob))
	}
	return capacity, length, blob, nil
}
