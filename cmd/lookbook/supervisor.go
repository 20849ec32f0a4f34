package main

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/lookbook/ledger"
	"github.com/rushteam/lookbook/recommend"
	"github.com/rushteam/lookbook/server"
)

// eventHook 把 suture 事件写入 zerolog。
func eventHook(logger zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		logger.Warn().Fields(e.Map()).Msg(e.String())
	}
}

// supervise 组装服务树：后台任务与 HTTP 服务分属两个子树，互不影响重启计数。
//
//	lookbook
//	├── background: ledger-sweeper, popularity-refresher, result-cache-sweeper
//	└── api: http-server
func (a *app) supervise() *suture.Supervisor {
	spec := suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          a.cfg.Server.ShutdownTimeout,
	}
	root := suture.New("lookbook", suture.Spec{
		EventHook:        eventHook(a.logger.With().Str("component", "supervisor").Logger()),
		FailureThreshold: spec.FailureThreshold,
		FailureDecay:     spec.FailureDecay,
		FailureBackoff:   spec.FailureBackoff,
		Timeout:          spec.Timeout,
	})
	background := suture.New("background", spec)
	api := suture.New("api", spec)
	root.Add(background)
	root.Add(api)

	background.Add(ledger.NewSweeper(a.ledger))
	background.Add(a.refresher)
	background.Add(recommend.NewCacheSweeper(a.service))
	api.Add(server.New(a.cfg.Server, a.service, a.logger))
	return root
}
