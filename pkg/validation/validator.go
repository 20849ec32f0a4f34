// Package validation 提供全局的 validator 单例与领域错误转换。
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rushteam/lookbook/core"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)
)

// Get 返回单例 validator。
//
// 自定义 tag：
//   - entityid：用户 / 商品 ID，字母数字开头，最长 128
//   - eventkind：已知的交互类型
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("entityid", func(fl validator.FieldLevel) bool {
			return ValidID(fl.Field().String())
		})
		_ = validate.RegisterValidation("eventkind", func(fl validator.FieldLevel) bool {
			return core.EventKind(fl.Field().String()).Valid()
		})
	})
	return validate
}

// ValidID 校验实体 ID。
func ValidID(id string) bool {
	return entityIDPattern.MatchString(id)
}

// Struct 校验结构体，失败时返回 module 下的 INVALID_INPUT 错误。
func Struct(module string, s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return core.ValidationError(module, "invalid input: %v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return core.ValidationError(module, "invalid input: %s", strings.Join(msgs, "; "))
}

// Var 校验单个值，name 用于错误消息。
func Var(module, name string, v any, tag string) error {
	if err := Get().Var(v, tag); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return core.ValidationError(module, "invalid %s: failed %q", name, fieldErrs[0].Tag())
		}
		return core.ValidationError(module, "invalid %s: %v", name, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "entityid":
		return fmt.Sprintf("%s is not a valid id", fe.Field())
	case "eventkind":
		return fmt.Sprintf("%s %q is not a known event kind", fe.Field(), fe.Value())
	case "min", "max", "gte", "lte", "gt", "lt":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
