// Package geodata loads population cells and facilities from PostGIS and
// renders them as GeoJSON for scenario editing.
package geodata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
)

// DefaultPopulationType sums every age group of the standard population.
const DefaultPopulationType = "standard_all"

// Pool is the subset of pgxpool.Pool used by Store.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads the population and facility catalogues.
type Store struct {
	pool Pool
}

// New creates a Store over pool.
func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "geodata: ping database")
	}
	return pool, nil
}

// PopulationQuery selects population cells.
type PopulationQuery struct {
	// Type names a population dataset. Empty means DefaultPopulationType.
	Type string
	// AgeGroups are the weight columns to sum. Ignored for
	// DefaultPopulationType, which sums every registered age group.
	AgeGroups []string
	// Indices are the grid cell ids, in the order the result must follow.
	Indices []int64
}

type populationTables struct {
	data string
	meta string
}

func (s *Store) populationTables(ctx context.Context, typ string) (populationTables, error) {
	name := typ
	if typ == DefaultPopulationType {
		name = "standard"
	}
	var t populationTables
	err := s.pool.QueryRow(ctx,
		`SELECT table_name, meta_table_name FROM population_list WHERE name = $1`, name,
	).Scan(&t.data, &t.meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, eris.Wrapf(access.ErrUnknownReference, "geodata: unknown population type %q", typ)
	}
	if err != nil {
		return t, eris.Wrap(err, "geodata: lookup population table")
	}
	return t, nil
}

func (s *Store) ageGroups(ctx context.Context, metaTable string) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT age_group_key FROM %s`, ident(metaTable)))
	if err != nil {
		return nil, eris.Wrap(err, "geodata: query age groups")
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "geodata: scan age groups")
	}
	return keys, nil
}

// Population returns the weighted cells for q.Indices, aligned with the
// index order. Every index must exist and appear once.
func (s *Store) Population(ctx context.Context, q PopulationQuery) (access.Population, error) {
	var pop access.Population
	if len(q.Indices) == 0 {
		return pop, eris.Wrap(access.ErrInvalidParameters, "geodata: no population indices")
	}
	position := make(map[int64]int, len(q.Indices))
	for i, id := range q.Indices {
		if _, dup := position[id]; dup {
			return pop, eris.Wrapf(access.ErrInvalidParameters, "geodata: duplicate population index %d", id)
		}
		position[id] = i
	}
	typ := q.Type
	if typ == "" {
		typ = DefaultPopulationType
	}

	tables, err := s.populationTables(ctx, typ)
	if err != nil {
		return pop, err
	}
	keys := q.AgeGroups
	if typ == DefaultPopulationType {
		if keys, err = s.ageGroups(ctx, tables.meta); err != nil {
			return pop, err
		}
	}
	if len(keys) == 0 {
		return pop, eris.Wrapf(access.ErrInvalidParameters, "geodata: population type %q has no age groups", typ)
	}

	cols := make([]string, len(keys))
	for i, k := range keys {
		cols[i] = ident(k)
	}
	sql := fmt.Sprintf(`SELECT pid, x, y, (%s)::bigint FROM %s WHERE pid = ANY($1)`,
		strings.Join(cols, " + "), ident(tables.data))

	rows, err := s.pool.Query(ctx, sql, q.Indices)
	if err != nil {
		return pop, eris.Wrap(err, "geodata: query population")
	}
	defer rows.Close()

	pop.Locations = make([]access.Point, len(q.Indices))
	pop.Weights = make([]int, len(q.Indices))
	found := make([]bool, len(q.Indices))

	for rows.Next() {
		var (
			pid    int64
			x, y   float64
			weight int64
		)
		if err := rows.Scan(&pid, &x, &y, &weight); err != nil {
			return pop, eris.Wrap(err, "geodata: scan population row")
		}
		i, ok := position[pid]
		if !ok {
			continue
		}
		pop.Locations[i] = access.Point{Lon: x, Lat: y}
		pop.Weights[i] = int(weight)
		found[i] = true
	}
	if err := rows.Err(); err != nil {
		return pop, eris.Wrap(err, "geodata: iterate population rows")
	}

	missing := 0
	for _, ok := range found {
		if !ok {
			missing++
		}
	}
	if missing > 0 {
		return access.Population{}, eris.Wrapf(access.ErrUnknownReference, "geodata: %d population cells not found", missing)
	}

	zap.L().Debug("geodata: loaded population",
		zap.String("type", typ),
		zap.Int("cells", pop.Len()),
	)
	return pop, nil
}

// ident quotes a catalogue-provided table or column name.
func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
