// Package server 通过 HTTP 暴露推荐编排层。
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/lookbook/core"
	"github.com/rushteam/lookbook/pkg/logging"
	"github.com/rushteam/lookbook/recommend"
	"github.com/rushteam/lookbook/store"
)

// Config HTTP 服务配置
type Config struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// RateLimit 每个客户端 IP 在 RateWindow 内允许的请求数，0 表示不限流
	RateLimit  int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow time.Duration `koanf:"rate_window" validate:"gt=0"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimit:       100,
		RateWindow:      time.Second,
	}
}

// Recommender 是 HTTP 层依赖的编排接口，*recommend.Service 满足此接口。
type Recommender interface {
	RecommendForYou(ctx context.Context, userID string, limit int) (*recommend.ForYouResponse, error)
	CompleteTheLook(ctx context.Context, anchorID string, maxItems int) (*recommend.LookResponse, error)
	Similar(ctx context.Context, productID string, limit int) (*recommend.SimilarResponse, error)
	Popular(ctx context.Context, limit int) ([]core.RankedItem, error)
	Record(ctx context.Context, ev core.InteractionEvent) error
	InvalidateProduct(ctx context.Context, productID string)
	Health(ctx context.Context) recommend.Health
	CacheStats() map[string]store.CacheStats
}

// Server 是 HTTP 服务，作为 suture 服务运行。
type Server struct {
	cfg    Config
	svc    Recommender
	logger zerolog.Logger
}

func New(cfg Config, svc Recommender, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, svc: svc, logger: logging.Component(logger, "server")}
}

// Handler 返回完整路由。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, s.cfg.RateWindow))
		}
		r.Get("/users/{userID}/for-you", s.forYou)
		r.Get("/products/{productID}/complete-the-look", s.completeTheLook)
		r.Get("/products/{productID}/similar", s.similar)
		r.Get("/popular", s.popular)
		r.Post("/products/{productID}/invalidate", s.invalidateProduct)
		r.Post("/events", s.recordEvent)
		r.Get("/cache/stats", s.cacheStats)
	})
	return r
}

// Serve 监听并服务，ctx 取消时优雅关闭。
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return ctx.Err()
}

func (s *Server) String() string { return "http-server" }
