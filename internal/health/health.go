package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Path is the only route the load balancer probes.
const Path = "/health"

// NewRouter returns a gin engine answering GET /health with 200 "OK". It does not look at
// worker state: a worker stuck in backoff is still alive.
func NewRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(Path, func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}

// Server runs an HTTP listener in the background. Listener failures are logged and never
// propagate to the caller.
type Server struct {
	srv  *http.Server
	log  zerolog.Logger
	done chan struct{}
}

// NewServer prepares a listener on addr. name only appears in logs.
func NewServer(name, addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log:  log.With().Str("component", name).Str("addr", addr).Logger(),
		done: make(chan struct{}),
	}
}

// Start serves on a new goroutine and returns immediately.
func (s *Server) Start() {
	go func() {
		defer close(s.done)
		s.log.Info().Msg("http listener starting")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http listener stopped")
		}
	}()
}

// Done is closed once the listener goroutine has exited.
func (s *Server) Done() <-chan struct{} { return s.done }

// Shutdown stops accepting probes and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
