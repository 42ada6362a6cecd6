package realtime

import (
	"encoding/json"
	"errors"
)

// Event names pushed by the backend.
const (
	EventAnalyticsUpdate = "analytics_update"
	EventNewNotification = "new_notification"
	EventUsersUpdate     = "users_update"
	EventAPKListUpdated  = "apk_list_updated"

	// EventJoinRoom is sent by the console to join a server-side room.
	EventJoinRoom = "join_room"
)

var (
	ErrNotConnected  = errors.New("realtime: channel not connected")
	ErrChannelClosed = errors.New("realtime: channel closed")
	ErrGaveUp        = errors.New("realtime: reconnection attempts exhausted")
)

// Event is one frame on the channel. The core treats Name as a trigger and
// never interprets Data.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler receives events for the names it was subscribed to.
type Handler func(Event)

// NewEvent builds an outbound event, encoding payload as its data.
func NewEvent(name string, payload any) (Event, error) {
	ev := Event{Name: name}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	ev.Data = data
	return ev, nil
}
