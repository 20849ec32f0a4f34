package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/lookbook/core"
)

// MemoryLog 是内存实现的 Log，每个用户一个分区，分区内按时间有序。
type MemoryLog struct {
	partitions sync.Map // userID -> *memPartition
}

type memPartition struct {
	mu     sync.RWMutex
	events []core.InteractionEvent
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Name() string { return "memory" }

func (m *MemoryLog) partition(userID string) *memPartition {
	if p, ok := m.partitions.Load(userID); ok {
		return p.(*memPartition)
	}
	p, _ := m.partitions.LoadOrStore(userID, &memPartition{})
	return p.(*memPartition)
}

func (m *MemoryLog) Append(_ context.Context, ev core.InteractionEvent) error {
	p := m.partition(ev.UserID)
	p.mu.Lock()
	defer p.mu.Unlock()
	// 乱序到达的事件插入到时间相同的事件之后
	i := sort.Search(len(p.events), func(i int) bool {
		return p.events[i].Timestamp.After(ev.Timestamp)
	})
	p.events = append(p.events, core.InteractionEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = ev
	return nil
}

func (p *memPartition) since(t time.Time) []core.InteractionEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i := sort.Search(len(p.events), func(i int) bool {
		return !p.events[i].Timestamp.Before(t)
	})
	return append([]core.InteractionEvent(nil), p.events[i:]...)
}

func (m *MemoryLog) Events(_ context.Context, userID string, since time.Time) ([]core.InteractionEvent, error) {
	p, ok := m.partitions.Load(userID)
	if !ok {
		return nil, nil
	}
	return p.(*memPartition).since(since), nil
}

func (m *MemoryLog) Scan(ctx context.Context, since time.Time, fn func(core.InteractionEvent) error) error {
	var err error
	m.partitions.Range(func(_, v any) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		for _, ev := range v.(*memPartition).since(since) {
			if err = fn(ev); err != nil {
				return false
			}
		}
		return true
	})
	return err
}

func (m *MemoryLog) Sweep(_ context.Context, before time.Time) (int, error) {
	removed := 0
	m.partitions.Range(func(k, v any) bool {
		p := v.(*memPartition)
		p.mu.Lock()
		i := sort.Search(len(p.events), func(i int) bool {
			return !p.events[i].Timestamp.Before(before)
		})
		if i > 0 {
			removed += i
			p.events = append([]core.InteractionEvent(nil), p.events[i:]...)
		}
		p.mu.Unlock()
		return true
	})
	return removed, nil
}

func (m *MemoryLog) Close() error { return nil }

var _ Log = (*MemoryLog)(nil)
