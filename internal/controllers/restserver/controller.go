package restserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/opensensors/airsense/internal/database"
	"github.com/opensensors/airsense/internal/log"
	"github.com/opensensors/airsense/pkg/config"
)

// Store is the subset of the database client used by the handlers
type Store interface {
	Fetch(ctx context.Context, query string, args map[string]interface{}, page, limit int) (*database.Result, error)
	FetchCached(ctx context.Context, query string, args map[string]interface{}, page, limit int) (*database.Result, error)
	FetchRow(ctx context.Context, query string, args map[string]interface{}, dest ...interface{}) error
	GetParameters(orderBy, sort string) ([]database.Measurand, error)
	LastCompletedFetch() (*database.Fetchlog, error)
}

// Controller represents the REST API server controller
type Controller struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	configProvider config.ConfigProvider
	apiConfig      config.APIData
	Server         http.Server
	DB             Store
	logger         *zap.SugaredLogger
	handlers       *Handlers
}

// NewController creates a new REST API server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, ac config.APIData, logger *zap.SugaredLogger) (*Controller, error) {
	ctrl := &Controller{
		ctx:            ctx,
		wg:             wg,
		configProvider: configProvider,
		apiConfig:      ac,
		logger:         logger,
	}

	dbConfig, err := configProvider.GetDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %v", err)
	}
	if dbConfig.ReadDSN == "" {
		return nil, fmt.Errorf("no read database configured for the API server")
	}

	client := database.NewClient(dbConfig.ReadDSN, logger)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("API server could not connect to database: %v", err)
	}
	ctrl.DB = client

	// If a listen address was not provided, listen on all interfaces
	if ac.ListenAddr == "" {
		logger.Info("api.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ac.ListenAddr = "0.0.0.0"
	}
	if ac.Port == 0 {
		logger.Info("api.port not provided; defaulting to 8080")
		ac.Port = 8080
	}
	ctrl.apiConfig = ac

	// Create handlers
	ctrl.handlers = NewHandlers(ctrl)

	// Set up router
	router := ctrl.setupRouter()
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ac.ListenAddr, ac.Port)
	ctrl.Server.Handler = router

	return ctrl, nil
}

// StartController starts the REST API server
func (c *Controller) StartController() error {
	log.Info("Starting REST API server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.apiConfig.Cert != "" && c.apiConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.apiConfig.Cert, c.apiConfig.Key); err != http.ErrServerClosed {
				log.Errorf("REST API server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST API server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST API server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() http.Handler {
	router := mux.NewRouter()

	router.Use(c.requestIDMiddleware)
	router.Use(c.timingMiddleware)
	router.Use(c.cacheControlMiddleware)

	router.HandleFunc("/ping", c.handlers.Ping)
	router.HandleFunc("/status", c.handlers.GetStatus)

	for _, prefix := range []string{"/v1", "/v2"} {
		sub := router.PathPrefix(prefix).Subrouter()
		v1 := prefix == "/v1"

		sub.HandleFunc("/measurements", c.handlers.GetMeasurements)
		sub.HandleFunc("/averages", c.handlers.GetAverages)
		sub.HandleFunc("/cities", c.handlers.GetCities)
		sub.HandleFunc("/countries", c.handlers.GetCountries)
		sub.HandleFunc("/countries/{id}", c.handlers.GetCountries)
		sub.HandleFunc("/sources", c.handlers.GetSources)
		sub.HandleFunc("/parameters", c.handlers.GetParameters)

		if v1 {
			sub.HandleFunc("/locations", c.handlers.GetLocationsV1)
			sub.HandleFunc("/locations/{id}", c.handlers.GetLocationsV1)
			sub.HandleFunc("/latest", c.handlers.GetLatestV1)
			sub.HandleFunc("/latest/{id}", c.handlers.GetLatestV1)
		} else {
			sub.HandleFunc("/locations/tiles/tiles.json", c.handlers.GetTileJSON)
			sub.HandleFunc("/locations/tiles/{z}/{x}/{y}.pbf", c.handlers.GetTile)
			sub.HandleFunc("/locations", c.handlers.GetLocations)
			sub.HandleFunc("/locations/{id}", c.handlers.GetLocations)
			sub.HandleFunc("/latest", c.handlers.GetLatest)
			sub.HandleFunc("/latest/{id}", c.handlers.GetLatest)
			sub.HandleFunc("/projects", c.handlers.GetProjects)
			sub.HandleFunc("/projects/{id}", c.handlers.GetProjects)
			sub.HandleFunc("/manufacturers", c.handlers.GetManufacturers)
			sub.HandleFunc("/models", c.handlers.GetModels)
		}
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		cors(handlers.CompressHandler(router)))
}

// requestIDMiddleware tags every request with an ID for log correlation
func (c *Controller) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

// timingWriter stamps time-to-first-byte into a response header
type timingWriter struct {
	http.ResponseWriter
	start time.Time
	wrote bool
}

func (t *timingWriter) WriteHeader(code int) {
	if !t.wrote {
		t.Header().Set("X-Response-Time", time.Since(t.start).String())
		t.wrote = true
	}
	t.ResponseWriter.WriteHeader(code)
}

func (t *timingWriter) Write(b []byte) (int, error) {
	if !t.wrote {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}

// timingMiddleware reports handler latency in a header and the debug log
func (c *Controller) timingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		tw := &timingWriter{ResponseWriter: w, start: start}
		next.ServeHTTP(tw, r)
		log.Debugw("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"elapsed", time.Since(start),
			"request_id", w.Header().Get("X-Request-Id"),
		)
	})
}

// cacheControlMiddleware marks GET responses as publicly cacheable
func (c *Controller) cacheControlMiddleware(next http.Handler) http.Handler {
	maxAge := c.apiConfig.CacheMaxAge
	if maxAge == 0 {
		maxAge = 900
	}
	value := "public, max-age=" + strconv.Itoa(maxAge)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Cache-Control", value)
		}
		next.ServeHTTP(w, r)
	})
}
