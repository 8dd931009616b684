package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/analysis"
	"github.com/sells-group/access-cli/internal/geodata"
	"github.com/sells-group/access-cli/internal/scenario"
	"github.com/sells-group/access-cli/internal/session"
)

// populationKey is the feature-table column holding the cell's population.
const populationKey = "population"

type populationInput struct {
	Locations []access.Point `json:"population_locations"`
	Weights   []int          `json:"population_weights"`
	Indices   []int64        `json:"population_indices"`
	Type      string         `json:"population_type"`
	AgeGroups []string       `json:"age_groups"`
}

type gridRequest struct {
	SessionID       string                           `json:"session_id" validate:"required"`
	TravelMode      string                           `json:"travel_mode"`
	Population      populationInput                  `json:"population"`
	Infrastructures map[string]access.Infrastructure `json:"infrastructures" validate:"required,min=1,dive"`
}

type scenarioRequest struct {
	SessionID       string                           `json:"session_id" validate:"required"`
	TravelMode      string                           `json:"travel_mode"`
	Infrastructures map[string]access.Infrastructure `json:"infrastructures" validate:"required,min=1,dive"`
}

type optimizationRequest struct {
	SessionID       string                     `json:"session_id" validate:"required"`
	TravelMode      string                     `json:"travel_mode"`
	Infrastructures map[string]scenario.Target `json:"infrastructures" validate:"required,min=1,dive"`
}

type statRequest struct {
	SessionID      string `json:"session_id" validate:"required"`
	Infrastructure string `json:"infrastructure"`
}

type featuresRequest struct {
	Kind           string     `json:"kind" validate:"required,oneof=population facilities"`
	Name           string     `json:"name" validate:"required_if=Kind facilities"`
	PopulationType string     `json:"population_type"`
	Envelope       [4]float64 `json:"envelope"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return eris.Wrapf(access.ErrInvalidParameters, "api: decode body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return eris.Wrapf(access.ErrInvalidParameters, "api: %v", err)
	}
	return nil
}

func (s *Server) travelMode(mode string) string {
	if mode == "" {
		return s.defaultMode
	}
	return mode
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id := s.store.NewSession(userFrom(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Remove(userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) grid(w http.ResponseWriter, r *http.Request) {
	var req gridRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := checkNames(req.Infrastructures); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	mode := s.travelMode(req.TravelMode)

	pop, err := s.population(ctx, req.Population)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := pop.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.loadFacilities(ctx, pop, req.Infrastructures, mode); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.engine.Baseline(ctx, userFrom(ctx), req.SessionID, pop, req.Infrastructures, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, featureTable(pop, res))
}

func (s *Server) scenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := checkNames(req.Infrastructures); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	res, pop, err := s.engine.Scenario(ctx, userFrom(ctx), req.SessionID, req.Infrastructures, s.travelMode(req.TravelMode))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, featureTable(pop, res))
}

func (s *Server) optimization(w http.ResponseWriter, r *http.Request) {
	var req optimizationRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	out, err := s.engine.Optimize(ctx, userFrom(ctx), req.SessionID, req.Infrastructures, s.travelMode(req.TravelMode))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) features(w http.ResponseWriter, r *http.Request) {
	var req featuresRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if s.geo == nil {
		writeError(w, errNoGeodata)
		return
	}
	e := req.Envelope
	if e[0] >= e[2] || e[1] >= e[3] {
		writeError(w, eris.Wrap(access.ErrInvalidParameters, "api: envelope must be [min_lon, min_lat, max_lon, max_lat]"))
		return
	}
	env, err := geodata.Envelope([]access.Point{{Lon: e[0], Lat: e[1]}, {Lon: e[2], Lat: e[3]}}, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	var fc any
	if req.Kind == "population" {
		fc, err = s.geo.PopulationFeatures(ctx, req.PopulationType, env)
	} else {
		fc, err = s.geo.FacilityFeatures(ctx, req.Name, env)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

func (s *Server) stat1(w http.ResponseWriter, r *http.Request) {
	s.statistic(w, r, false, func(st session.State, _ string) (any, error) {
		return analysis.CoverageCount(st)
	})
}

func (s *Server) stat2(w http.ResponseWriter, r *http.Request) {
	s.statistic(w, r, true, func(st session.State, name string) (any, error) {
		return analysis.QualityTiers(st, name)
	})
}

func (s *Server) stat3(w http.ResponseWriter, r *http.Request) {
	s.statistic(w, r, true, func(st session.State, name string) (any, error) {
		return analysis.ServedCounts(st, name)
	})
}

func (s *Server) hotspot(w http.ResponseWriter, r *http.Request) {
	s.statistic(w, r, false, func(st session.State, _ string) (any, error) {
		return analysis.Hotspot(st)
	})
}

func (s *Server) statistic(w http.ResponseWriter, r *http.Request, needsInfra bool, fn func(session.State, string) (any, error)) {
	var req statRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if needsInfra && req.Infrastructure == "" {
		writeError(w, eris.Wrap(access.ErrInvalidParameters, "api: infrastructure is required"))
		return
	}
	st, err := s.snapshot(userFrom(r.Context()), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := fn(st, req.Infrastructure)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) snapshot(user, id string) (session.State, error) {
	sess, err := s.store.Get(user, id)
	if err != nil {
		return session.State{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Server) population(ctx context.Context, in populationInput) (access.Population, error) {
	if len(in.Indices) == 0 {
		return access.Population{Locations: in.Locations, Weights: in.Weights}, nil
	}
	if s.geo == nil {
		return access.Population{}, errNoGeodata
	}
	return s.geo.Population(ctx, geodata.PopulationQuery{
		Type:      in.Type,
		AgeGroups: in.AgeGroups,
		Indices:   in.Indices,
	})
}

// loadFacilities fills infrastructures that arrive without facility
// locations from the spatial database, searching the population's extent
// grown by the distance reachable within the decay's range.
func (s *Server) loadFacilities(ctx context.Context, pop access.Population, infras map[string]access.Infrastructure, mode string) error {
	if s.geo == nil {
		return nil
	}
	for name, infra := range infras {
		if len(infra.Facilities) > 0 {
			continue
		}
		speed, ok := s.speeds[mode]
		if !ok {
			return eris.Wrapf(access.ErrInvalidParameters, "api: unknown travel mode %q", mode)
		}
		env, err := geodata.Envelope(pop.Locations, infra.Decay.MaxRangeHint()*speed)
		if err != nil {
			return err
		}
		locations, weights, err := s.geo.Facilities(ctx, name, env)
		if err != nil {
			return eris.Wrapf(err, "api: load facilities for %q", name)
		}
		infra.Facilities = locations
		infra.FacilityWeights = weights
		infras[name] = infra
	}
	return nil
}

func checkNames(infras map[string]access.Infrastructure) error {
	if _, ok := infras[populationKey]; ok {
		return eris.Wrapf(access.ErrInvalidParameters, "api: %q is a reserved name", populationKey)
	}
	return nil
}

// featureTable renders one row per population cell with the population,
// every infrastructure's score and the composite.
func featureTable(pop access.Population, res *access.Result) []map[string]float64 {
	names := res.Infrastructures()
	composite := res.Composite()
	rows := make([]map[string]float64, pop.Len())
	for i := range rows {
		row := make(map[string]float64, len(names)+2)
		row[populationKey] = float64(pop.Weights[i])
		for _, name := range names {
			row[name] = res.Access[name][i]
		}
		row[access.MultiCriteria] = composite[i]
		rows[i] = row
	}
	return rows
}
