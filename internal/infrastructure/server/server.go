package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termie/internal/api/middleware"
	"github.com/GriffinCanCode/termie/internal/infrastructure/config"
	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termie/internal/pty"
	"github.com/GriffinCanCode/termie/internal/viewer"
)

const shutdownTimeout = 5 * time.Second

// Session is the terminal as seen by the HTTP endpoints.
type Session interface {
	Transcript() string
	Done() <-chan struct{}
	ExitStatus() pty.ExitStatus
	OutputEvicted() uint64
}

// Breaker reports the state of the classifier's circuit breaker.
type Breaker interface {
	BreakerState() resilience.State
}

// Deps are the components the server exposes.
type Deps struct {
	Config  *config.Config
	Session Session
	Hub     *viewer.Hub
	// Classifier is nil when classification is disabled.
	Classifier Breaker
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

// Server wraps the HTTP server and its router.
type Server struct {
	router     *gin.Engine
	session    Session
	hub        *viewer.Hub
	classifier Breaker
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	config     *config.Config
}

// New creates the router and registers every route.
func New(d Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = monitoring.NewMetrics()
	}

	if !d.Config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(d.Logger))
	router.Use(monitoring.Middleware(d.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if d.Config.RateLimit.Enabled {
		d.Logger.Info("Rate limiting enabled",
			zap.Int("rps", d.Config.RateLimit.RequestsPerSecond),
			zap.Int("burst", d.Config.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: d.Config.RateLimit.RequestsPerSecond,
			Burst:             d.Config.RateLimit.Burst,
		}))
	}

	gzip, err := gzhttp.NewWrapper(gzhttp.ContentTypes([]string{"text/html", "text/plain"}))
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:     router,
		session:    d.Session,
		hub:        d.Hub,
		classifier: d.Classifier,
		metrics:    d.Metrics,
		logger:     d.Logger,
		config:     d.Config,
	}

	router.GET("/", gin.WrapH(gzip(viewer.PageHandler())))
	router.GET("/stream", d.Hub.HandleConnection)
	router.GET("/health", s.health)
	router.GET("/transcript", gin.WrapH(gzip(http.HandlerFunc(s.transcript))))
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errChan; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthResponse struct {
	Status        string              `json:"status"`
	ExitStatus    string              `json:"exit_status,omitempty"`
	Viewers       int                 `json:"viewers"`
	OutputEvicted uint64              `json:"output_evicted_bytes"`
	Classifier    string              `json:"classifier_breaker,omitempty"`
	Metrics       monitoring.Snapshot `json:"metrics"`
}

func (s *Server) health(c *gin.Context) {
	resp := healthResponse{
		Status:        "running",
		Viewers:       s.hub.Viewers(),
		OutputEvicted: s.session.OutputEvicted(),
		Metrics:       s.metrics.Snapshot(),
	}
	if s.classifier != nil {
		resp.Classifier = s.classifier.BreakerState().String()
	}
	select {
	case <-s.session.Done():
		resp.Status = "exited"
		resp.ExitStatus = s.session.ExitStatus().String()
	default:
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) transcript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(s.session.Transcript()))
}
