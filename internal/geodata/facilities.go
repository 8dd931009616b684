package geodata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/access-cli/internal/access"
)

const (
	srid            = 4326
	metersPerDegree = 111320.0
)

// Envelope returns the bounding box of points grown by bufferMeters on
// every side, as an SRID 4326 polygon.
func Envelope(points []access.Point, bufferMeters float64) (*geom.Polygon, error) {
	if len(points) == 0 {
		return nil, eris.Wrap(access.ErrInvalidParameters, "geodata: envelope of no points")
	}
	flat := make([]float64, 0, 2*len(points))
	for _, p := range points {
		flat = append(flat, p.Lon, p.Lat)
	}
	b := geom.NewMultiPointFlat(geom.XY, flat).Bounds()
	minX, minY, maxX, maxY := b.Min(0), b.Min(1), b.Max(0), b.Max(1)

	dLat := bufferMeters / metersPerDegree
	// Longitude degrees shrink towards the poles; use the widest latitude.
	cos := math.Cos(math.Max(math.Abs(minY), math.Abs(maxY)) * math.Pi / 180)
	dLon := dLat
	if cos > 1e-6 {
		dLon = dLat / cos
	}

	minX, maxX = minX-dLon, maxX+dLon
	minY, maxY = minY-dLat, maxY+dLat
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10}).SetSRID(srid), nil
}

func encodeEnvelope(envelope *geom.Polygon) ([]byte, error) {
	if envelope.SRID() == 0 {
		envelope.SetSRID(srid)
	}
	data, err := ewkb.Marshal(envelope, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: encode envelope")
	}
	return data, nil
}

type facilityTable struct {
	table, geometry, weight string
}

func (s *Store) facilityTable(ctx context.Context, name string) (facilityTable, error) {
	var t facilityTable
	err := s.pool.QueryRow(ctx,
		`SELECT table_name, geometry_column, weight_column FROM facilities_list WHERE name = $1`, name,
	).Scan(&t.table, &t.geometry, &t.weight)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, eris.Wrapf(access.ErrUnknownReference, "geodata: unknown facility type %q", name)
	}
	if err != nil {
		return t, eris.Wrap(err, "geodata: lookup facility table")
	}
	return t, nil
}

// Facilities returns the locations and capacity weights of every facility of
// the named type inside envelope. Zero-weight and duplicate locations are
// skipped.
func (s *Store) Facilities(ctx context.Context, name string, envelope *geom.Polygon) ([]access.Point, []float64, error) {
	t, err := s.facilityTable(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	env, err := encodeEnvelope(envelope)
	if err != nil {
		return nil, nil, err
	}

	sql := fmt.Sprintf(`SELECT ST_AsEWKB(%[1]s), (%[2]s)::float8 FROM %[3]s WHERE ST_Within(%[1]s, ST_GeomFromEWKB($1))`,
		ident(t.geometry), ident(t.weight), ident(t.table))
	rows, err := s.pool.Query(ctx, sql, env)
	if err != nil {
		return nil, nil, eris.Wrap(err, "geodata: query facilities")
	}
	defer rows.Close()

	var (
		locations []access.Point
		weights   []float64
	)
	seen := make(map[access.Point]bool)
	for rows.Next() {
		var (
			raw    []byte
			weight float64
		)
		if err := rows.Scan(&raw, &weight); err != nil {
			return nil, nil, eris.Wrap(err, "geodata: scan facility row")
		}
		if weight == 0 {
			continue
		}
		p, err := decodePoint(raw)
		if err != nil {
			return nil, nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		locations = append(locations, p)
		weights = append(weights, weight)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "geodata: iterate facility rows")
	}
	return locations, weights, nil
}

// FacilityFeatures returns the facilities of the named type inside envelope
// as a GeoJSON FeatureCollection with a "weight" property.
func (s *Store) FacilityFeatures(ctx context.Context, name string, envelope *geom.Polygon) (*geojson.FeatureCollection, error) {
	locations, weights, err := s.Facilities(ctx, name, envelope)
	if err != nil {
		return nil, err
	}
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(locations))}
	for i, p := range locations {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}),
			Properties: map[string]any{"weight": weights[i]},
		})
	}
	return fc, nil
}

// PopulationFeatures returns the population cells of a dataset inside
// envelope as GeoJSON points. Each feature id is the cell index accepted by
// Population.
func (s *Store) PopulationFeatures(ctx context.Context, typ string, envelope *geom.Polygon) (*geojson.FeatureCollection, error) {
	if typ == "" {
		typ = DefaultPopulationType
	}
	tables, err := s.populationTables(ctx, typ)
	if err != nil {
		return nil, err
	}
	env, err := encodeEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT pid, x, y FROM %s WHERE ST_Within(geometry, ST_GeomFromEWKB($1)) ORDER BY pid`, ident(tables.data))
	rows, err := s.pool.Query(ctx, sql, env)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: query population cells")
	}
	defer rows.Close()

	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for rows.Next() {
		var (
			pid  int64
			x, y float64
		)
		if err := rows.Scan(&pid, &x, &y); err != nil {
			return nil, eris.Wrap(err, "geodata: scan population cell")
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.FormatInt(pid, 10),
			Geometry:   geom.NewPointFlat(geom.XY, []float64{x, y}),
			Properties: map[string]any{"index": pid},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geodata: iterate population cells")
	}
	return fc, nil
}

func decodePoint(raw []byte) (access.Point, error) {
	g, err := ewkb.Unmarshal(raw)
	if err != nil {
		return access.Point{}, eris.Wrap(err, "geodata: decode facility geometry")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return access.Point{}, eris.Errorf("geodata: facility geometry is %T, want point", g)
	}
	return access.PointFromGeom(p), nil
}
