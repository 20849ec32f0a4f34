package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/rushteam/lookbook/core"
)

// key 布局：ev:{userID}|{unixNano, 20 位补零}|{seq}
// '|' 不是合法的实体 ID 字符，用户前缀不会互相覆盖。
const (
	eventKeyPrefix = "ev:"
	keySep         = "|"
)

func userPrefix(userID string) []byte {
	return []byte(eventKeyPrefix + userID + keySep)
}

func tsKey(t time.Time) string {
	if t.Before(time.Unix(0, 0)) {
		return fmt.Sprintf("%020d", 0)
	}
	return fmt.Sprintf("%020d", t.UnixNano())
}

func eventKey(userID string, t time.Time, seq uint64) []byte {
	return []byte(eventKeyPrefix + userID + keySep + tsKey(t) + keySep + strconv.FormatUint(seq, 10))
}

// keyTime 从 key 中解析事件时间。
func keyTime(key []byte) (time.Time, bool) {
	parts := strings.Split(string(key), keySep)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// BadgerConfig 持久化流水配置
type BadgerConfig struct {
	Dir      string `koanf:"dir"`
	InMemory bool   `koanf:"in_memory"`
}

// BadgerLog 是基于 BadgerDB 的持久化 Log，事件以 JSON 存储。
// key 以用户与时间为前缀，按用户读取是一次前缀范围扫描。
type BadgerLog struct {
	db   *badger.DB
	seq  atomic.Uint64
	owns bool
}

// OpenBadgerLog 打开（或创建）数据目录。
func OpenBadgerLog(cfg BadgerConfig) (*BadgerLog, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger badger %q: %w", cfg.Dir, err)
	}
	l := NewBadgerLog(db)
	l.owns = true
	return l, nil
}

// NewBadgerLog 使用已打开的数据库，Close 不会关闭 db。
func NewBadgerLog(db *badger.DB) *BadgerLog {
	l := &BadgerLog{db: db}
	l.seq.Store(uint64(time.Now().UnixNano()))
	return l
}

func (l *BadgerLog) Name() string { return "badger" }

func (l *BadgerLog) Append(_ context.Context, ev core.InteractionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := eventKey(ev.UserID, ev.Timestamp, l.seq.Add(1))
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (l *BadgerLog) Events(ctx context.Context, userID string, since time.Time) ([]core.InteractionEvent, error) {
	var out []core.InteractionEvent
	prefix := userPrefix(userID)
	start := append(append([]byte(nil), prefix...), tsKey(since)...)
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ev core.InteractionEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode event %s: %w", it.Item().Key(), err)
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *BadgerLog) Scan(ctx context.Context, since time.Time, fn func(core.InteractionEvent) error) error {
	prefix := []byte(eventKeyPrefix)
	return l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if ts, ok := keyTime(item.Key()); !ok || ts.Before(since) {
				continue
			}
			var ev core.InteractionEvent
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode event %s: %w", item.Key(), err)
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *BadgerLog) Sweep(ctx context.Context, before time.Time) (int, error) {
	var stale [][]byte
	prefix := []byte(eventKeyPrefix)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ts, ok := keyTime(it.Item().Key()); ok && ts.Before(before) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan stale events: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := l.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return 0, fmt.Errorf("delete event: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush sweep: %w", err)
	}
	return len(stale), nil
}

func (l *BadgerLog) Close() error {
	if !l.owns {
		return nil
	}
	return l.db.Close()
}

var _ Log = (*BadgerLog)(nil)
