// Package ledger 记录用户交互流水，并从流水派生时间衰减的用户画像。
package ledger

import (
	"context"
	"time"

	"github.com/rushteam/lookbook/core"
)

// Log 是交互流水的存储抽象。
//
// 设计原则：
//   - 只追加，事件写入后不可修改
//   - 按用户分区，不同用户的读写互不阻塞
//   - 删除只发生在保留期清理（Sweep）
type Log interface {
	Name() string

	// Append 追加一条事件
	Append(ctx context.Context, ev core.InteractionEvent) error

	// Events 返回用户在 since 之后（含）的事件，按时间升序
	Events(ctx context.Context, userID string, since time.Time) ([]core.InteractionEvent, error)

	// Scan 遍历所有用户在 since 之后的事件，fn 返回错误时中止
	Scan(ctx context.Context, since time.Time, fn func(core.InteractionEvent) error) error

	// Sweep 删除 before 之前的事件，返回删除数量
	Sweep(ctx context.Context, before time.Time) (int, error)

	Close() error
}
