package recommend

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID 把请求 ID 放入 ctx，编排层日志会带上它。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID 读取 ctx 中的请求 ID，没有时生成一个新的。
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
