package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/perimeterx/marshmallow"

	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/xyz"
)

// TileMetadata describes one ingested tile: its bounding box and the fixtures sampled from it
// (with arena global row and column ids). Unknown keys are kept in Extra.
type TileMetadata struct {
	Top       int           `json:"top"`
	Bottom    int           `json:"bottom"`
	Left      int           `json:"left"`
	Right     int           `json:"right"`
	UnitTests []xyz.Fixture `json:"unittests"`

	Extra map[string]interface{} `json:"-"`
}

func NewTileMetadata(bbox geometry.BoundingBox, fixtures []xyz.Fixture) TileMetadata {
	return TileMetadata{
		Top:       bbox.Top,
		Bottom:    bbox.Bottom,
		Left:      bbox.Left,
		Right:     bbox.Right,
		UnitTests: fixtures,
	}
}

func (m TileMetadata) BBox() geometry.BoundingBox {
	return geometry.BoundingBox{Top: m.Top, Bottom: m.Bottom, Left: m.Left, Right: m.Right}
}

func (m TileMetadata) MarshalJSON() ([]byte, error) {
	type plain TileMetadata
	data, err := json.Marshal(plain(m))
	if err != nil || len(m.Extra) == 0 {
		return data, err
	}
	merged := make(map[string]interface{}, len(m.Extra)+5)
	for k, v := range m.Extra {
		merged[k] = v
	}
	if err = json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

func (m *TileMetadata) UnmarshalJSON(data []byte) error {
	type plain TileMetadata
	extra, err := marshmallow.Unmarshal(data, (*plain)(m), marshmallow.WithExcludeKnownFieldsFromMap(true))
	if err != nil {
		return err
	}
	if len(extra) > 0 {
		m.Extra = extra
	}
	return nil
}

// MetadataItem is one entry of the metadata log
type MetadataItem struct {
	ID       int64
	TilePath string
	Meta     TileMetadata
}

// SetMetadataItem appends a tile to the metadata log and records its footprint
func (s *Store) SetMetadataItem(tilePath string, meta TileMetadata) error {
	bbox := meta.BBox()
	if err := bbox.Validate(); err != nil {
		return err
	}
	info, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	footprint, err := gpkg.NewBinary(SRS, bbox.Polygon())
	if err != nil {
		return fmt.Errorf("could not create a binary geometry: %w", err)
	}
	return s.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO metadata (tilepath, tileinfo) VALUES (?, ?);`, tilePath, string(info)); err != nil {
			return fmt.Errorf("could not store metadata of %s: %w", tilePath, err)
		}
		if _, err := tx.Exec(`INSERT INTO "`+tilesTable+`" (tilepath, geom) VALUES (?, ?);`, tilePath, footprint); err != nil {
			return fmt.Errorf("could not store footprint of %s: %w", tilePath, err)
		}
		return growExtent(tx, bbox.Extent())
	})
}

// growExtent widens the extent of the tiles table in gpkg_contents to include extent
func growExtent(tx *sql.Tx, extent *geom.Extent) error {
	_, err := tx.Exec(`UPDATE gpkg_contents SET
		min_x = min(coalesce(min_x, ?1), ?1),
		min_y = min(coalesce(min_y, ?2), ?2),
		max_x = max(coalesce(max_x, ?3), ?3),
		max_y = max(coalesce(max_y, ?4), ?4),
		last_change = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE table_name = ?5;`,
		extent.MinX(), extent.MinY(), extent.MaxX(), extent.MaxY(), tilesTable)
	if err != nil {
		return fmt.Errorf("could not update the extent of %s: %w", tilesTable, err)
	}
	return nil
}

// MetadataItems returns the metadata log in insertion order
func (s *Store) MetadataItems() ([]MetadataItem, error) {
	rows, err := s.handle.Query(`SELECT id, tilepath, tileinfo FROM metadata ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MetadataItem
	for rows.Next() {
		var item MetadataItem
		var info string
		if err = rows.Scan(&item.ID, &item.TilePath, &info); err != nil {
			return nil, err
		}
		if err = json.Unmarshal([]byte(info), &item.Meta); err != nil {
			return nil, fmt.Errorf("could not decode metadata of %s: %w", item.TilePath, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ArenaBoundingBox is the union of the bounding boxes of all ingested tiles
func (s *Store) ArenaBoundingBox() (geometry.BoundingBox, error) {
	items, err := s.MetadataItems()
	if err != nil {
		return geometry.BoundingBox{}, err
	}
	if len(items) == 0 {
		return geometry.BoundingBox{}, ErrEmptyMetadata
	}
	bbox := items[0].Meta.BBox()
	for _, item := range items[1:] {
		bbox = bbox.Union(item.Meta.BBox())
	}
	return bbox, nil
}

// Footprints returns the tile footprints as stored in the tiles feature table
func (s *Store) Footprints() (map[string]geometry.BoundingBox, error) {
	rows, err := s.handle.Query(`SELECT tilepath, geom FROM "` + tilesTable + `";`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	footprints := make(map[string]geometry.BoundingBox)
	for rows.Next() {
		var tilePath string
		var blob []byte
		if err = rows.Scan(&tilePath, &blob); err != nil {
			return nil, err
		}
		sb, err := gpkg.DecodeGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("error decoding the geometry of %s: %w", tilePath, err)
		}
		bbox, err := geometry.BoundingBoxOf(sb.Geometry)
		if err != nil {
			return nil, err
		}
		footprints[tilePath] = bbox
	}
	return footprints, rows.Err()
}
