package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可包装底层错误（Cause），支持 errors.Is / errors.As
//   - 支持错误检查函数（IsXXX），对包装后的错误同样有效
//
// 对外可见的错误只有三类：
//   - INVALID_INPUT：请求参数非法（ValidationError）
//   - NOT_FOUND：锚点商品不存在等
//   - UNAVAILABLE：下游全部失败，由编排层降级处理，不直接透出
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "ledger", "bundle"）
	Cause   error  // 底层错误，可为空
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is 让同一模块、同一代码的哨兵错误可以用 errors.Is 比较。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Module == t.Module && e.Message == t.Message
}

// IsDomainError 检查错误链中是否包含 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建包装底层错误的领域错误
func WrapDomainError(module, code string, cause error, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore     = "store"
	ModuleFeature   = "feature"
	ModuleVector    = "vector"
	ModuleLedger    = "ledger"
	ModuleRecall    = "recall"
	ModuleRank      = "rank"
	ModuleBundle    = "bundle"
	ModuleRecommend = "recommend"
	ModuleConfig    = "config"
	ModuleServer    = "server"
)

// ValidationError 构造 INVALID_INPUT 错误。
func ValidationError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidInput, fmt.Sprintf(format, args...))
}

// NotFoundError 构造 NOT_FOUND 错误。
func NotFoundError(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeNotFound, fmt.Sprintf(format, args...))
}

// UnavailableError 构造 UNAVAILABLE 错误，cause 可为空。
func UnavailableError(module string, cause error, format string, args ...any) *DomainError {
	return WrapDomainError(module, ErrorCodeUnavailable, cause, format, args...)
}

func hasCode(err error, code string) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Code == code
}

// IsValidation 检查错误是否为 INVALID_INPUT
func IsValidation(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// ErrAllStrategiesFailed 表示所有召回策略都失败，编排层据此走热门兜底。
var ErrAllStrategiesFailed = NewDomainError(ModuleRecall, ErrorCodeUnavailable, "recall: all strategies failed")
