package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/xyz"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "arena.gpkg")
	s, err := Open(file)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, file
}

func TestStore_Headers(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.RowHeaders()
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.ColHeaders()
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.AddColHeaders([]float64{9}), ErrNotFound)

	require.NoError(t, s.SetRowHeaders([]float64{48, 47.5}))
	require.NoError(t, s.AddRowHeaders([]float64{47, 46.5}))
	rowHeaders, err := s.RowHeaders()
	require.NoError(t, err)
	assert.Equal(t, []float64{48, 47.5, 47, 46.5}, rowHeaders)

	require.NoError(t, s.SetColHeaders([]float64{8, 8.5}))
	require.NoError(t, s.AddColHeaders([]float64{9, 9.5}))
	require.NoError(t, s.SetColHeaders([]float64{10}))
	colHeaders, err := s.ColHeaders()
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, colHeaders, "set replaces")
}

func TestStore_Rows(t *testing.T) {
	s, _ := openTestStore(t)
	maxRowBytes := 8

	require.NoError(t, s.SetRows([][]byte{{1, 2, 3, 4}, {11, 12, 13, 14}}, 0, 0, maxRowBytes))
	row, err := s.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{11, 12, 13, 14}, row)

	require.NoError(t, s.AddRows([][]byte{{5, 6, 7, 8}, {15, 16, 17, 18}}, 0, 2, maxRowBytes))
	row, err = s.Row(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, row)
	row, err = s.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{11, 12, 13, 14, 15, 16, 17, 18}, row)

	count, err := s.RowCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = s.Row(2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RowErrors(t *testing.T) {
	maxRowBytes := 8
	tests := []struct {
		name    string
		prepare func(s *Store) error
		call    func(s *Store) error
		wantErr error
	}{
		{
			name:    "set rows not at the west edge",
			call:    func(s *Store) error { return s.SetRows([][]byte{{1, 2}}, 0, 1, maxRowBytes) },
			wantErr: ErrIllegalCall,
		},
		{
			name:    "add rows at the west edge",
			call:    func(s *Store) error { return s.AddRows([][]byte{{1, 2}}, 0, 0, maxRowBytes) },
			wantErr: ErrIllegalCall,
		},
		{
			name:    "set row too long",
			call:    func(s *Store) error { return s.SetRows([][]byte{make([]byte, 10)}, 0, 0, maxRowBytes) },
			wantErr: ErrCapacityExceeded,
		},
		{
			name:    "add rows to absent row",
			call:    func(s *Store) error { return s.AddRows([][]byte{{1, 2}}, 5, 1, maxRowBytes) },
			wantErr: ErrNotFound,
		},
		{
			name:    "set existing row",
			prepare: func(s *Store) error { return s.SetRows([][]byte{{1, 2, 3, 4}}, 0, 0, maxRowBytes) },
			call:    func(s *Store) error { return s.SetRows([][]byte{{1, 2, 3, 4}}, 0, 0, maxRowBytes) },
			wantErr: ErrOutOfSequence,
		},
		{
			name:    "add rows beyond capacity",
			prepare: func(s *Store) error { return s.SetRows([][]byte{{1, 2, 3, 4}}, 0, 0, maxRowBytes) },
			call:    func(s *Store) error { return s.AddRows([][]byte{{5, 6, 7, 8}}, 0, 4, maxRowBytes) },
			wantErr: ErrCapacityExceeded,
		},
		{
			name:    "add rows leaving a gap",
			prepare: func(s *Store) error { return s.SetRows([][]byte{{1, 2}}, 0, 0, maxRowBytes) },
			call:    func(s *Store) error { return s.AddRows([][]byte{{5, 6}}, 0, 2, maxRowBytes) },
			wantErr: ErrOutOfSequence,
		},
		{
			name: "add rows twice",
			prepare: func(s *Store) error {
				if err := s.SetRows([][]byte{{1, 2, 3, 4}}, 0, 0, maxRowBytes); err != nil {
					return err
				}
				return s.AddRows([][]byte{{5, 6, 7, 8}}, 0, 2, maxRowBytes)
			},
			call:    func(s *Store) error { return s.AddRows([][]byte{{5, 6, 7, 8}}, 0, 2, maxRowBytes) },
			wantErr: ErrOutOfSequence,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := openTestStore(t)
			if tt.prepare != nil {
				require.NoError(t, tt.prepare(s))
			}
			assert.ErrorIs(t, tt.call(s), tt.wantErr)
		})
	}
}

func TestStore_SetRowsIsAtomic(t *testing.T) {
	s, _ := openTestStore(t)
	err := s.SetRows([][]byte{{1, 2}, make([]byte, 10)}, 0, 0, 8)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	_, err = s.Row(0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Metadata(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.ArenaBoundingBox()
	require.ErrorIs(t, err, ErrEmptyMetadata)

	fixtures := []xyz.Fixture{{RowID: 1200, ColID: 1200, Lon: 9, Lat: 47.5, Elev: 403}}
	require.NoError(t, s.SetMetadataItem("N47_E008", NewTileMetadata(geometry.BoundingBox{Top: 48, Bottom: 47, Left: 8, Right: 9}, nil)))
	require.NoError(t, s.SetMetadataItem("N47_E009", NewTileMetadata(geometry.BoundingBox{Top: 48, Bottom: 47, Left: 9, Right: 10}, fixtures)))

	items, err := s.MetadataItems()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "N47_E008", items[0].TilePath)
	assert.Equal(t, "N47_E009", items[1].TilePath)
	assert.Equal(t, fixtures, items[1].Meta.UnitTests)
	assert.Empty(t, items[0].Meta.UnitTests)

	bbox, err := s.ArenaBoundingBox()
	require.NoError(t, err)
	assert.Equal(t, geometry.BoundingBox{Top: 48, Bottom: 47, Left: 8, Right: 10}, bbox)

	footprints, err := s.Footprints()
	require.NoError(t, err)
	assert.Equal(t, map[string]geometry.BoundingBox{
		"N47_E008": {Top: 48, Bottom: 47, Left: 8, Right: 9},
		"N47_E009": {Top: 48, Bottom: 47, Left: 9, Right: 10},
	}, footprints)

	err = s.SetMetadataItem("broken", TileMetadata{Top: 47, Bottom: 47, Left: 8, Right: 9})
	assert.ErrorIs(t, err, geometry.ErrInvalidGeometry)
}

func TestStore_MetadataExtent(t *testing.T) {
	s, _ := openTestStore(t)
	extent := func() [4]float64 {
		var e [4]float64
		err := s.handle.QueryRow(`SELECT min_x, min_y, max_x, max_y FROM gpkg_contents WHERE table_name = ?;`, tilesTable).
			Scan(&e[0], &e[1], &e[2], &e[3])
		require.NoError(t, err)
		return e
	}

	require.NoError(t, s.SetMetadataItem("N47_E008", NewTileMetadata(geometry.BoundingBox{Top: 48, Bottom: 47, Left: 8, Right: 9}, nil)))
	assert.Equal(t, [4]float64{8, 47, 9, 48}, extent())
	require.NoError(t, s.SetMetadataItem("N46_E009", NewTileMetadata(geometry.BoundingBox{Top: 47, Bottom: 46, Left: 9, Right: 10}, nil)))
	assert.Equal(t, [4]float64{8, 46, 10, 48}, extent())

	// a failing extent update leaves neither metadata nor footprint behind
	_, err := s.handle.Exec(`CREATE TRIGGER locked_extent BEFORE UPDATE ON gpkg_contents BEGIN SELECT RAISE(ABORT, 'extent locked'); END;`)
	require.NoError(t, err)
	require.Error(t, s.SetMetadataItem("N46_E008", NewTileMetadata(geometry.BoundingBox{Top: 47, Bottom: 46, Left: 8, Right: 9}, nil)))
	items, err := s.MetadataItems()
	require.NoError(t, err)
	assert.Len(t, items, 2)
	footprints, err := s.Footprints()
	require.NoError(t, err)
	assert.Len(t, footprints, 2)
}

func TestTileMetadata_JSON(t *testing.T) {
	input := `{"top":48,"bottom":47,"left":9,"right":10,"source":"glo-90","unittests":[{"rowId":1,"colId":2,"x":9.1,"y":47.9,"z":512}]}`
	var meta TileMetadata
	require.NoError(t, json.Unmarshal([]byte(input), &meta))
	assert.Equal(t, geometry.BoundingBox{Top: 48, Bottom: 47, Left: 9, Right: 10}, meta.BBox())
	assert.Equal(t, []xyz.Fixture{{RowID: 1, ColID: 2, Lon: 9.1, Lat: 47.9, Elev: 512}}, meta.UnitTests)
	assert.Equal(t, map[string]interface{}{"source": "glo-90"}, meta.Extra)

	output, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(output))
}

func TestStore_WriteListener(t *testing.T) {
	s, _ := openTestStore(t)
	writes := 0
	s.AddWriteListener(func() { writes++ })

	require.NoError(t, s.SetRowHeaders([]float64{48}))
	require.NoError(t, s.SetRows([][]byte{{1, 2}}, 0, 0, 4))
	require.Error(t, s.SetRows([][]byte{{1, 2}}, 0, 0, 4))
	assert.Equal(t, 2, writes, "failed writes are not notified")
}

func TestStore_RemoveWriteListener(t *testing.T) {
	s, _ := openTestStore(t)
	var first, second int
	removeFirst := s.AddWriteListener(func() { first++ })
	s.AddWriteListener(func() { second++ })
	assert.Equal(t, 2, s.WriteListeners())

	require.NoError(t, s.SetRowHeaders([]float64{48}))
	removeFirst()
	removeFirst()
	assert.Equal(t, 1, s.WriteListeners())

	require.NoError(t, s.AddRowHeaders([]float64{47}))
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestStore_Reopen(t *testing.T) {
	s, file := openTestStore(t)
	require.NoError(t, s.SetRows([][]byte{{1, 2}}, 0, 0, 4))
	require.NoError(t, s.SetMetadataItem("N47_E008", NewTileMetadata(geometry.BoundingBox{Top: 48, Bottom: 47, Left: 8, Right: 9}, nil)))
	require.NoError(t, s.Close())

	reopened, err := Open(file)
	require.NoError(t, err)
	defer reopened.Close()
	row, err := reopened.Row(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, row)
	bbox, err := reopened.ArenaBoundingBox()
	require.NoError(t, err)
	assert.Equal(t, geometry.BoundingBox{Top: 48, Bottom: 47, Left: 8, Right: 9}, bbox)
}
