package ledger

import (
	"context"
	"time"
)

// Sweeper 是定期清理过期事件的后台服务，实现 suture.Service。
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
}

func NewSweeper(l *Ledger) *Sweeper {
	interval := l.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{ledger: l, interval: interval}
}

// Serve 每个周期执行一次 Sweep，失败只记录日志，下个周期重试。
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.ledger.Sweep(ctx, s.ledger.now())
			if err != nil {
				s.ledger.logger.Error().Err(err).Msg("ledger sweep failed")
				continue
			}
			if n > 0 {
				s.ledger.logger.Info().Int("removed", n).Msg("ledger sweep completed")
			}
		}
	}
}

func (s *Sweeper) String() string { return "ledger-sweeper" }
