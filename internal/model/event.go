package model

import "time"

// PoolEvent 풀 구독자에게 보내는 알림
type PoolEvent struct {
	Type    PoolEventType `json:"type"`
	PoolID  int64         `json:"poolId"`
	ActorID int64         `json:"actorId"`
	Data    interface{}   `json:"data,omitempty"`
	At      time.Time     `json:"at"`
}
