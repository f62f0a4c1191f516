// Package dispatch is the HTTP front of the pipeline: it accepts
// raster uploads, durably records them, hands them to the queue and
// answers status and cancellation requests.
package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/SERDSDDAM/SurpadClone/pkg/pipeline"
	"github.com/SERDSDDAM/SurpadClone/pkg/queue"
	"github.com/SERDSDDAM/SurpadClone/pkg/store"
)

// JobStore is the slice of the job store the dispatcher needs.
type JobStore interface {
	CreateJobWithLayer(ctx context.Context, jobID, layerID, filename string, meta store.Metadata) error
	GetJob(ctx context.Context, jobID string) (*store.Job, error)
	CancelJob(ctx context.Context, jobID string) (bool, error)
	FailJob(ctx context.Context, jobID string, kind pipeline.Kind, detail store.Metadata) (bool, error)
	GetLayer(ctx context.Context, layerID string) (*store.Layer, error)
	JobCounts(ctx context.Context, window time.Duration) (map[string]int, error)
}

// Enqueuer publishes process tasks.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, taskType string, payload queue.ProcessPayload, highPriority bool) error
}

// QueueInspector revokes tasks and reports queue depth.
type QueueInspector interface {
	Revoke(jobID string) error
	Stats() ([]queue.QueueStats, error)
	ActiveTasks() ([]string, error)
}

// Server serves the dispatcher API.
type Server struct {
	store     JobStore
	enqueuer  Enqueuer
	inspector QueueInspector
	uploadDir string
	log       zerolog.Logger

	engine *gin.Engine
	http   *http.Server
}

// Options configures a Server.
type Options struct {
	Store     JobStore
	Enqueuer  Enqueuer
	Inspector QueueInspector
	UploadDir string
	Addr      string
	// Development enables gin debug output.
	Development bool
	Log         zerolog.Logger
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		store:     opts.Store,
		enqueuer:  opts.Enqueuer,
		inspector: opts.Inspector,
		uploadDir: opts.UploadDir,
		log:       opts.Log,
	}

	e := gin.New()
	e.Use(gin.Recovery(), s.requestLog())
	e.MaxMultipartMemory = 32 << 20

	e.POST("/enqueue", s.enqueue)
	e.GET("/jobs/:id", s.jobStatus)
	e.POST("/jobs/:id/cancel", s.cancelJob)
	e.GET("/layers/:id", s.layerStatus)
	e.GET("/queue/status", s.queueStatus)
	e.GET("/health", s.health)

	s.engine = e
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      e,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.http.ListenAndServe()
	}()
	s.log.Info().Str("addr", s.http.Addr).Msg("dispatcher listening")

	select {
	case err := <-errc:
		return errors.Wrap(err, "dispatcher server failed")
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return errors.Wrap(s.http.Shutdown(shutCtx), "failed draining dispatcher")
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
