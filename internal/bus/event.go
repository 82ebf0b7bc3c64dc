package bus

import "time"

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by namespace prefix ("session.", "messages.", ...).
const (
	SessionStatusChanged = "session.status_changed"
	SessionDevicePrompt  = "session.device_prompt"

	MessagesSnapshot    = "messages.snapshot"
	MessagesStreamError = "messages.stream_error"

	RosterSnapshot    = "roster.snapshot"
	RosterStreamError = "roster.stream_error"

	OutboxSendAck    = "outbox.send_ack"
	OutboxSendFailed = "outbox.send_failed"

	// CollectionChanged is prefixed onto a collection name by the local fan-out.
	CollectionChanged = "collection.changed."

	AuthChanged = "auth.changed"
)
