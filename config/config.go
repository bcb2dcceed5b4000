// Package config holds the settings of the arena commands. Values come from CLI flags or
// their environment variables (optionally from a .env file), missing ones get their defaults.
package config

import (
	"errors"
	"io/fs"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/pdok/arena/geometry"
)

// Build configures the ingestion of an arena
type Build struct {
	North float64 `validate:"gte=-90,lte=90,gtfield=South"`
	South float64 `validate:"gte=-90,lte=90"`
	West  float64 `validate:"gte=-180,lte=180"`
	East  float64 `validate:"gte=-180,lte=180,gtfield=West"`

	TileDir string `validate:"required,dir"`
	DBPath  string `validate:"required"`

	Resolution    int     `default:"1200" validate:"gte=2"`
	FixtureRate   float64 `default:"0.00001" validate:"gte=0,lte=1"`
	StrictHeaders bool
	Overwrite     bool
}

// BBox is the whole degree arena around the configured corners
func (b Build) BBox() (geometry.BoundingBox, error) {
	return geometry.ComputeBBox(b.North, b.South, b.West, b.East)
}

// Query configures the commands reading an arena
type Query struct {
	DBPath    string `validate:"required,file"`
	CacheSize int    `default:"10" validate:"gte=1"`
	Weighted  bool
}

func NewBuild() (Build, error) {
	var b Build
	err := defaults.Set(&b)
	return b, err
}

func NewQuery() (Query, error) {
	var q Query
	err := defaults.Set(&q)
	return q, err
}

// Validate checks a Build or Query
func Validate(c interface{}) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return validate.Struct(c)
}

// LoadDotEnv loads the given .env files (".env" when none given) into the environment.
// Missing files are skipped, variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
