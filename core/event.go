package core

import "time"

// EventKind 是用户交互类型。
type EventKind string

const (
	EventView     EventKind = "view"
	EventCartAdd  EventKind = "cart_add"
	EventPurchase EventKind = "purchase"
	EventFavorite EventKind = "favorite"
	EventRemove   EventKind = "remove"
)

// EventKinds 按优先级从高到低列出全部交互类型。
var EventKinds = []EventKind{EventPurchase, EventCartAdd, EventFavorite, EventView, EventRemove}

// Priority 返回交互类型的优先级：purchase > cart_add > favorite > view > remove。
// 同一商品上多次交互时，只保留优先级最高的那一类参与画像计算。
func (k EventKind) Priority() int {
	switch k {
	case EventPurchase:
		return 4
	case EventCartAdd:
		return 3
	case EventFavorite:
		return 2
	case EventView:
		return 1
	default:
		return 0
	}
}

// Valid 判断是否为已知类型。
func (k EventKind) Valid() bool {
	switch k {
	case EventView, EventCartAdd, EventPurchase, EventFavorite, EventRemove:
		return true
	}
	return false
}

// EventContext 是交互发生时的可选上下文。
type EventContext struct {
	SessionID  string   `json:"sessionID,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// InteractionEvent 是一条不可变的用户交互记录。
// 写入 Ledger 后不会被修改，只会被保留期清理删除。
type InteractionEvent struct {
	UserID    string        `json:"userID" validate:"required,entityid"`
	ProductID string        `json:"productID" validate:"required,entityid"`
	Kind      EventKind     `json:"kind" validate:"required,eventkind"`
	Timestamp time.Time     `json:"timestamp"`
	Context   *EventContext `json:"context,omitempty"`
}
