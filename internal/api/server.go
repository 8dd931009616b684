// Package api serves the decision-support HTTP endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/geodata"
	"github.com/sells-group/access-cli/internal/scenario"
	"github.com/sells-group/access-cli/internal/session"
)

// UserHeader carries the caller's identity.
const UserHeader = "X-User"

const maxBodyBytes = 32 << 20

// GeoSource loads population and facilities from a spatial database.
type GeoSource interface {
	Population(ctx context.Context, q geodata.PopulationQuery) (access.Population, error)
	Facilities(ctx context.Context, name string, envelope *geom.Polygon) ([]access.Point, []float64, error)
	FacilityFeatures(ctx context.Context, name string, envelope *geom.Polygon) (*geojson.FeatureCollection, error)
	PopulationFeatures(ctx context.Context, typ string, envelope *geom.Polygon) (*geojson.FeatureCollection, error)
}

// Option configures a Server.
type Option func(*Server)

// WithGeoSource enables database-backed population and facility loading.
func WithGeoSource(g GeoSource) Option {
	return func(s *Server) {
		s.geo = g
	}
}

// WithDefaultTravelMode sets the mode used when a request names none.
func WithDefaultTravelMode(mode string) Option {
	return func(s *Server) {
		s.defaultMode = mode
	}
}

// WithSpeeds sets travel speeds in metres per second, used to turn a decay
// range into a search radius.
func WithSpeeds(speeds map[string]float64) Option {
	return func(s *Server) {
		s.speeds = speeds
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store       *session.Store
	engine      *scenario.Engine
	geo         GeoSource
	defaultMode string
	speeds      map[string]float64
	origins     []string
	metrics     http.Handler
	validate    *validator.Validate
}

// New creates a Server.
func New(store *session.Store, engine *scenario.Engine, opts ...Option) *Server {
	s := &Server{
		store:       store,
		engine:      engine,
		defaultMode: access.ModeDriving,
		origins:     []string{"*"},
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", UserHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/decision-support", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/session", s.createSession)
		r.Delete("/session/{id}", s.deleteSession)
		r.Post("/grid", s.grid)
		r.Post("/scenario", s.scenario)
		r.Post("/optimization", s.optimization)
		r.Post("/features", s.features)
		r.Route("/analysis", func(r chi.Router) {
			r.Post("/stat_1", s.stat1)
			r.Post("/stat_2", s.stat2)
			r.Post("/stat_3", s.stat3)
			r.Post("/hotspot", s.hotspot)
		})
	})
	return r
}

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(UserHeader)
		if user == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: UserHeader + " header is required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
