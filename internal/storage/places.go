package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gabrielmiguelok/tropa/pkg/lookup"
)

// Places stores the region, sub-region and locality hierarchy.
type Places struct {
	db *DB
}

// NewPlaces returns the places repository.
func NewPlaces(db *DB) *Places {
	return &Places{db: db}
}

// Regions lists every region. The parent id is ignored.
func (p *Places) Regions() lookup.Source {
	return lookup.SourceFunc(func(ctx context.Context, _ string) ([]lookup.Option, error) {
		return p.options(ctx, `SELECT id, name FROM regions ORDER BY name`)
	})
}

// Subregions lists the sub-regions of a region.
func (p *Places) Subregions() lookup.Source {
	return lookup.SourceFunc(func(ctx context.Context, regionID string) ([]lookup.Option, error) {
		if err := p.exists(ctx, "regions", regionID); err != nil {
			return nil, err
		}
		return p.options(ctx, `SELECT id, name FROM subregions WHERE region_id=? ORDER BY name`, regionID)
	})
}

// Localities lists the localities of a sub-region.
func (p *Places) Localities() lookup.Source {
	return lookup.SourceFunc(func(ctx context.Context, subregionID string) ([]lookup.Option, error) {
		if err := p.exists(ctx, "subregions", subregionID); err != nil {
			return nil, err
		}
		return p.options(ctx, `SELECT id, name FROM localities WHERE subregion_id=? ORDER BY name`, subregionID)
	})
}

func (p *Places) exists(ctx context.Context, table, id string) error {
	var one int
	err := p.db.SQL.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s %q", lookup.ErrNotFound, table, id)
	}
	return err
}

func (p *Places) options(ctx context.Context, q string, args ...any) ([]lookup.Option, error) {
	rows, err := p.db.SQL.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []lookup.Option{}
	for rows.Next() {
		var o lookup.Option
		if err := rows.Scan(&o.ID, &o.Label); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// PlacesFile is the YAML seed format:
//
//	regions:
//	  - id: r1
//	    name: Norte
//	    subregions:
//	      - id: s1
//	        name: Costa
//	        localities:
//	          - {id: l1, name: Puerto}
type PlacesFile struct {
	Regions []RegionSeed `yaml:"regions"`
}

type RegionSeed struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Subregions []SubregionSeed `yaml:"subregions"`
}

type SubregionSeed struct {
	ID         string         `yaml:"id"`
	Name       string         `yaml:"name"`
	Localities []LocalitySeed `yaml:"localities"`
}

type LocalitySeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ImportStats counts the rows written by Import.
type ImportStats struct {
	Regions    int
	Subregions int
	Localities int
}

// Import upserts a YAML places tree in one transaction.
func (p *Places) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	var file PlacesFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return ImportStats{}, fmt.Errorf("decode places: %w", err)
	}

	var stats ImportStats
	err := p.db.inTx(ctx, func(tx *sql.Tx) error {
		stats = ImportStats{}
		for _, reg := range file.Regions {
			if reg.ID == "" {
				return fmt.Errorf("region %q: missing id", reg.Name)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO regions(id, name) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET name=excluded.name`, reg.ID, reg.Name); err != nil {
				return err
			}
			stats.Regions++

			for _, sub := range reg.Subregions {
				if sub.ID == "" {
					return fmt.Errorf("subregion %q: missing id", sub.Name)
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO subregions(id, region_id, name) VALUES (?, ?, ?)
					ON CONFLICT(id) DO UPDATE SET region_id=excluded.region_id, name=excluded.name`,
					sub.ID, reg.ID, sub.Name); err != nil {
					return err
				}
				stats.Subregions++

				for _, loc := range sub.Localities {
					if loc.ID == "" {
						return fmt.Errorf("locality %q: missing id", loc.Name)
					}
					if _, err := tx.ExecContext(ctx, `
						INSERT INTO localities(id, subregion_id, name) VALUES (?, ?, ?)
						ON CONFLICT(id) DO UPDATE SET subregion_id=excluded.subregion_id, name=excluded.name`,
						loc.ID, sub.ID, loc.Name); err != nil {
						return err
					}
					stats.Localities++
				}
			}
		}
		return nil
	})
	return stats, err
}
