package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/apiserver/middleware"
	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/config"
	"github.com/lwgs/searchindex-client/pkg/seed"
	syncmgr "github.com/lwgs/searchindex-client/pkg/sync"
)

// FullSyncManager is the lifecycle surface the operator API drives.
type FullSyncManager interface {
	State() syncmgr.SeedState
	CurrentJobID() (uuid.UUID, bool)
	Counters() syncmgr.Counters
	StartSeeding() (uuid.UUID, error)
	SubmitSeeding() error
	FailSeeding() error
	StartSending() error
	FinishSending() error
	Reset() error
}

// QueueStats reports broker queue depths.
type QueueStats interface {
	GetQueueCount(queue string) (int, error)
}

// Server is the operator/ops HTTP surface. The record-seeding REST surface
// lives with the upstream producers, not here.
type Server struct {
	router   *gin.Engine
	seeder   *seed.Service
	fullSync FullSyncManager
	stats    QueueStats
	cfg      *config.Config
	logger   *zap.Logger
}

func NewServer(seeder *seed.Service, fullSync FullSyncManager, stats QueueStats, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		seeder:   seeder,
		fullSync: fullSync,
		stats:    stats,
		cfg:      cfg,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(s.cfg.Auth))

		api.GET("/sync/full", s.getFullSync)
		api.POST("/sync/full/start", s.startFullSync)
		api.POST("/sync/full/submit", s.submitFullSync)
		api.POST("/sync/full/fail", s.failFullSync)
		api.POST("/sync/full/sending", s.startSending)
		api.POST("/sync/full/sent", s.finishSending)
		api.POST("/sync/full/reset", s.resetFullSync)

		api.GET("/queues/:name/count", s.getQueueCount)
		api.GET("/stats", s.getSeedStats)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.AdminPort),
		Handler:     s.router,
		ReadTimeout: s.cfg.Server.ReadTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ReadTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

type fullSyncResponse struct {
	State    string           `json:"state"`
	JobID    *string          `json:"job_id,omitempty"`
	Counters syncmgr.Counters `json:"counters"`
}

func (s *Server) fullSyncState() fullSyncResponse {
	response := fullSyncResponse{
		State:    string(s.fullSync.State()),
		Counters: s.fullSync.Counters(),
	}
	if jobID, ok := s.fullSync.CurrentJobID(); ok {
		id := jobID.String()
		response.JobID = &id
	}
	return response
}

func (s *Server) getFullSync(c *gin.Context) {
	c.JSON(http.StatusOK, s.fullSyncState())
}

func (s *Server) startFullSync(c *gin.Context) {
	jobID, err := s.fullSync.StartSeeding()
	if err != nil {
		s.respondTransition(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID.String()})
}

func (s *Server) submitFullSync(c *gin.Context) {
	s.respondTransition(c, s.fullSync.SubmitSeeding())
}

func (s *Server) failFullSync(c *gin.Context) {
	s.respondTransition(c, s.fullSync.FailSeeding())
}

func (s *Server) startSending(c *gin.Context) {
	s.respondTransition(c, s.fullSync.StartSending())
}

func (s *Server) finishSending(c *gin.Context) {
	s.respondTransition(c, s.fullSync.FinishSending())
}

func (s *Server) resetFullSync(c *gin.Context) {
	s.respondTransition(c, s.fullSync.Reset())
}

func (s *Server) respondTransition(c *gin.Context, err error) {
	if errors.Is(err, syncmgr.ErrIllegalStateTransition) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("full-sync transition failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, s.fullSyncState())
}

var statQueues = map[string]bool{
	broker.QueuePersonDataPartialIncoming: true,
	broker.QueuePersonDataPartialOutgoing: true,
	broker.QueuePersonDataPartialFailed:   true,
	broker.QueuePersonDataFullIncoming:    true,
	broker.QueuePersonDataFullOutgoing:    true,
	broker.QueuePersonDataFullFailed:      true,
	broker.QueueTransactionState:          true,
	broker.QueueSedexState:                true,
	broker.QueueSedexOutgoing:             true,
}

func (s *Server) getQueueCount(c *gin.Context) {
	name := c.Param("name")
	if !statQueues[name] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown queue"})
		return
	}

	count, err := s.stats.GetQueueCount(name)
	if err != nil {
		s.logger.Warn("queue count unavailable", zap.String("queue", name), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "queue count unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": name, "count": count})
}

type seedStatsResponse struct {
	PartialQueued    int `json:"partial_queued"`
	PartialProcessed int `json:"partial_processed"`
	PartialFailed    int `json:"partial_failed"`
	FullQueued       int `json:"full_queued"`
	FullProcessed    int `json:"full_processed"`
	FullFailed       int `json:"full_failed"`
}

func (s *Server) getSeedStats(c *gin.Context) {
	var response seedStatsResponse
	var err error

	read := func(dst *int, fetch func() (int, error)) {
		if err != nil {
			return
		}
		*dst, err = fetch()
	}

	read(&response.PartialQueued, s.seeder.PartialQueued)
	read(&response.PartialProcessed, s.seeder.PartialProcessed)
	read(&response.PartialFailed, s.seeder.PartialFailed)
	read(&response.FullQueued, s.seeder.FullQueued)
	read(&response.FullProcessed, s.seeder.FullProcessed)
	read(&response.FullFailed, s.seeder.FullFailed)

	if err != nil {
		s.logger.Warn("queue stats unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "queue stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, response)
}
