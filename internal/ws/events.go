package ws

import (
	"time"
)

type EventType string

const (
	EventRegenerationProgress EventType = "regeneration.progress"
	EventRegenerationFinished EventType = "regeneration.finished"
)

type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
