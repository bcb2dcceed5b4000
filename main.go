package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/muesli/reflow/truncate"
	"github.com/urfave/cli/v2"

	"github.com/pdok/arena/config"
	"github.com/pdok/arena/geometry"
	"github.com/pdok/arena/logging"
	"github.com/pdok/arena/processing"
	"github.com/pdok/arena/query"
	"github.com/pdok/arena/route"
	"github.com/pdok/arena/store"
	"github.com/pdok/arena/xyz"
)

const NORTH string = `north`
const SOUTH string = `south`
const WEST string = `west`
const EAST string = `east`
const TILES string = `tiles`
const DB string = `db`
const OVERWRITE string = `overwrite`
const RESOLUTION string = `resolution`
const FIXTURERATE string = `fixture-rate`
const STRICT string = `strict`
const CACHESIZE string = `cache-size`
const LAT string = `lat`
const LON string = `lon`
const WEIGHTED string = `weighted`
const WAYPOINTS string = `waypoints`
const INTERVAL string = `interval`

const pathWidth = 60

func envVars(name string) []string {
	return []string{strcase.ToScreamingSnake(name)}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     DB,
		Aliases:  []string{"d"},
		Usage:    "Arena GeoPackage",
		Required: true,
		EnvVars:  envVars(DB),
	}
}

func cacheSizeFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    CACHESIZE,
		Usage:   "Number of rows kept in the row cache",
		EnvVars: envVars(CACHESIZE),
	}
}

func latLonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{Name: LAT, Usage: "Latitude (WGS 84)", Required: true, EnvVars: envVars(LAT)},
		&cli.Float64Flag{Name: LON, Usage: "Longitude (WGS 84)", Required: true, EnvVars: envVars(LON)},
	}
}

//nolint:funlen
func main() {
	logging.Setup()
	if err := config.LoadDotEnv(); err != nil {
		logging.L().Error("dotenv_failed", "error", err)
		os.Exit(1)
	}

	app := cli.NewApp()
	app.Name = "arena"
	app.Usage = "A stitched DEM elevation store with a cached query engine"
	app.Version = versioninfo.Short()

	app.Commands = []*cli.Command{
		{
			Name:  "build",
			Usage: "Stitch the GLO-90 XYZ tiles covering the given corners into an arena GeoPackage",
			Flags: []cli.Flag{
				&cli.Float64Flag{Name: NORTH, Aliases: []string{"n"}, Usage: "Northern edge", Required: true, EnvVars: envVars(NORTH)},
				&cli.Float64Flag{Name: SOUTH, Aliases: []string{"s"}, Usage: "Southern edge", Required: true, EnvVars: envVars(SOUTH)},
				&cli.Float64Flag{Name: WEST, Aliases: []string{"w"}, Usage: "Western edge", Required: true, EnvVars: envVars(WEST)},
				&cli.Float64Flag{Name: EAST, Aliases: []string{"e"}, Usage: "Eastern edge", Required: true, EnvVars: envVars(EAST)},
				&cli.StringFlag{
					Name:     TILES,
					Aliases:  []string{"t"},
					Usage:    "Directory with one gdal XYZ file per tile, named after the tile folder. E.g. Copernicus_DSM_COG_30_N47_00_E009_00_DEM.txt",
					Required: true,
					EnvVars:  envVars(TILES),
				},
				dbFlag(),
				&cli.BoolFlag{
					Name:    OVERWRITE,
					Aliases: []string{"o"},
					Usage:   "Overwrite the arena GeoPackage if it exists",
					EnvVars: envVars(OVERWRITE),
				},
				&cli.IntFlag{
					Name:    RESOLUTION,
					Aliases: []string{"r"},
					Usage:   "Cells per tile side",
					EnvVars: envVars(RESOLUTION),
				},
				&cli.Float64Flag{
					Name:    FIXTURERATE,
					Usage:   "Probability for a cell to be kept as fixture for verify",
					EnvVars: envVars(FIXTURERATE),
				},
				&cli.BoolFlag{
					Name:    STRICT,
					Usage:   "Fail on a column header mismatch instead of warning",
					EnvVars: envVars(STRICT),
				},
			},
			Action: buildAction,
		},
		{
			Name:   "verify",
			Usage:  "Replay the fixtures sampled during the build against the arena",
			Flags:  []cli.Flag{dbFlag(), cacheSizeFlag()},
			Action: verifyAction,
		},
		{
			Name:  "elevation",
			Usage: "Elevation in meters at a point",
			Flags: append(latLonFlags(), dbFlag(), cacheSizeFlag(),
				&cli.BoolFlag{Name: WEIGHTED, Usage: "Inverse distance weighted over the 9 nearest cells", EnvVars: envVars(WEIGHTED)},
			),
			Action: elevationAction,
		},
		{
			Name:  "flight",
			Usage: "Flight information along a route",
			Flags: []cli.Flag{
				dbFlag(),
				cacheSizeFlag(),
				&cli.StringFlag{
					Name:     WAYPOINTS,
					Usage:    `Waypoints as JSON array of [lat, lon]. E.g.: [[47.1,8.1],[47.2,8.3]]`,
					Required: true,
					EnvVars:  envVars(WAYPOINTS),
				},
				&cli.Float64Flag{
					Name:    INTERVAL,
					Usage:   "Meters between trackpoints",
					Value:   route.DefaultInterval,
					EnvVars: envVars(INTERVAL),
				},
			},
			Action: flightAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.L().Error("arena_failed", "error", err)
		os.Exit(1)
	}
}

func buildAction(c *cli.Context) error {
	cfg, err := config.NewBuild()
	if err != nil {
		return err
	}
	cfg.North, cfg.South, cfg.West, cfg.East = c.Float64(NORTH), c.Float64(SOUTH), c.Float64(WEST), c.Float64(EAST)
	cfg.TileDir, cfg.DBPath = c.String(TILES), c.String(DB)
	cfg.Overwrite, cfg.StrictHeaders = c.Bool(OVERWRITE), c.Bool(STRICT)
	if c.IsSet(RESOLUTION) {
		cfg.Resolution = c.Int(RESOLUTION)
	}
	if c.IsSet(FIXTURERATE) {
		cfg.FixtureRate = c.Float64(FIXTURERATE)
	}
	if err = config.Validate(cfg); err != nil {
		return err
	}
	bbox, err := cfg.BBox()
	if err != nil {
		return err
	}
	if err = removeExisting(cfg.DBPath, cfg.Overwrite); err != nil {
		return err
	}

	target, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer target.Close()

	tiles := geometry.EnumerateTiles(bbox, cfg.Resolution)
	logging.L().Info("build_started", "bbox", bbox.String(), "tiles", len(tiles), "db", cfg.DBPath)
	decoder := xyz.NewDecoder(cfg.Resolution,
		xyz.WithStrict(cfg.StrictHeaders),
		xyz.WithFixtureRate(cfg.FixtureRate),
		xyz.WithProgress(func(count, total int) {
			logging.L().Debug("tile_decoding", "cells", count, "total", total)
		}, 100*cfg.Resolution),
	)
	source := processing.DirSource{Dir: cfg.TileDir, Decoder: decoder}
	summary, err := processing.Build(c.Context, source, target, tiles, cfg.Resolution, geometry.MaxRowBytes(bbox, cfg.Resolution))
	if err != nil {
		return err
	}
	fmt.Printf("stitched %d tiles, %d rows, %d fixtures, %d warnings in %s\n",
		summary.Tiles, summary.Rows, summary.Fixtures, summary.Warnings, summary.Duration)
	return nil
}

// removeExisting removes the arena GeoPackage when asked to, otherwise an existing one is an error
func removeExisting(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("arena GeoPackage %s exists, use --%s", path, OVERWRITE)
		}
		return nil
	}
	err := os.Remove(path)
	var pathError *os.PathError
	if err != nil && !(errors.As(err, &pathError) && errors.Is(pathError.Err, syscall.ENOENT)) {
		return fmt.Errorf("could not remove arena GeoPackage: %w", err)
	}
	return nil
}

// queryConfig reads the query settings from the command line
func queryConfig(c *cli.Context) (config.Query, error) {
	cfg, err := config.NewQuery()
	if err != nil {
		return cfg, err
	}
	cfg.DBPath = c.String(DB)
	if c.IsSet(CACHESIZE) {
		cfg.CacheSize = c.Int(CACHESIZE)
	}
	cfg.Weighted = c.Bool(WEIGHTED)
	return cfg, config.Validate(cfg)
}

// openQuery opens an existing arena for reading
func openQuery(cfg config.Query) (*store.Store, *query.Engine, error) {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return s, query.NewEngine(s, query.WithCacheSize(cfg.CacheSize)), nil
}

func verifyAction(c *cli.Context) error {
	cfg, err := queryConfig(c)
	if err != nil {
		return err
	}
	s, engine, err := openQuery(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	defer engine.Close()

	items, err := s.MetadataItems()
	if err != nil {
		return err
	}
	report := processing.Verify(items, engine)
	for _, f := range report.Failures {
		fmt.Printf("FAIL %-*s row %d col %d: want %d, got %d at (%d, %d)\n",
			pathWidth, truncate.StringWithTail(f.TilePath, pathWidth, "..."),
			f.Fixture.RowID, f.Fixture.ColID, f.Fixture.Elev, f.Got.Elevation, f.Got.RowID, f.Got.ColID)
	}
	fmt.Printf("%d tiles, %d fixtures passed, %d failed\n", len(items), report.Passed, report.Failed)
	if !report.OK() {
		return cli.Exit("verification failed", 1)
	}
	return nil
}

func elevationAction(c *cli.Context) error {
	cfg, err := queryConfig(c)
	if err != nil {
		return err
	}
	s, engine, err := openQuery(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	defer engine.Close()

	lat, lon := c.Float64(LAT), c.Float64(LON)
	if cfg.Weighted {
		elevation, err := engine.WeightedElevation(lat, lon)
		if err != nil {
			return err
		}
		fmt.Println(elevation)
		return nil
	}
	cell, err := engine.NearestElevation(lat, lon)
	if err != nil {
		return err
	}
	fmt.Printf("%d (row %d, col %d at %v, %v)\n", cell.Elevation, cell.RowID, cell.ColID, cell.Lat, cell.Long)
	return nil
}

func flightAction(c *cli.Context) error {
	var coordinates [][2]float64
	if err := json.Unmarshal([]byte(c.String(WAYPOINTS)), &coordinates); err != nil {
		return fmt.Errorf("invalid waypoints: %w", err)
	}
	waypoints := make([]route.Point, len(coordinates))
	for i, coordinate := range coordinates {
		waypoints[i] = route.Point{Lat: coordinate[0], Long: coordinate[1]}
	}

	cfg, err := queryConfig(c)
	if err != nil {
		return err
	}
	s, engine, err := openQuery(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	defer engine.Close()

	bbox, err := s.ArenaBoundingBox()
	if err != nil {
		return err
	}
	r, err := route.Builder{BBox: bbox, Interval: c.Float64(INTERVAL)}.Build("flight", waypoints)
	if err != nil {
		return err
	}
	trackpoints, err := route.Fly(engine, r)
	for _, tp := range trackpoints {
		fmt.Printf("%.6f, %.6f, %d, %d, %s, %.2f\n", tp.Lat, tp.Long, tp.Elevation, tp.NextElevation, tp.Direction, tp.Heading)
	}
	return err
}
