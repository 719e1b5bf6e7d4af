package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/meshmac/internal/mac/addr"
	"github.com/danmuck/meshmac/internal/mac/stats"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

// NodeStatus is the read side of a running MAC node.
type NodeStatus interface {
	Self() addr.Addr
	Stats() stats.Snapshot
}

// StatusServer exposes health, counters and prometheus metrics for one node.
type StatusServer struct {
	Addr     string
	Appeared time.Time

	node   NodeStatus
	label  string
	router *gin.Engine
}

type StatsResponse struct {
	Node          string         `json:"node"`
	Stats         stats.Snapshot `json:"stats"`
	SuccessRate   *float64       `json:"success_rate"`
	ThroughputBps float64        `json:"throughput_bps"`
	Report        string         `json:"report"`
}

// StatusOptions tunes the HTTP surface. Nil TrustedProxies trusts loopback only.
type StatusOptions struct {
	CorsOrigins    []string
	TrustedProxies []string
}

var loopbackProxies = []string{"127.0.0.1", "::1"}

func NewStatusServer(addr string, node NodeStatus, opts StatusOptions) (*StatusServer, error) {
	RegisterMetrics()
	label := node.Self().String()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(statusAccess(node, NodeLogger("meshnode", label)))
	if len(opts.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CorsOrigins,
			AllowMethods:  []string{"GET"},
			AllowHeaders:  []string{"Origin", "Content-Type"},
			ExposeHeaders: []string{NodeHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	proxies := opts.TrustedProxies
	if proxies == nil {
		proxies = loopbackProxies
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		return nil, fmt.Errorf("observability: trusted proxies %v: %w", proxies, err)
	}

	s := &StatusServer{
		Addr:     addr,
		Appeared: time.Now(),
		node:     node,
		label:    label,
		router:   r,
	}
	s.registerRoutes()
	return s, nil
}

func (s *StatusServer) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *StatusServer) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"node":    s.label,
			"service": "meshnode",
			"version": version,
		})
	})

	s.router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.statsResponse())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *StatusServer) statsResponse() StatsResponse {
	snap := s.node.Stats()
	resp := StatsResponse{
		Node:          s.label,
		Stats:         snap,
		ThroughputBps: snap.ThroughputBps(),
		Report:        snap.String(),
	}
	if rate, ok := snap.SuccessRate(); ok {
		resp.SuccessRate = &rate
	}
	return resp
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *StatusServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
