package domain

// Event names used on the push channel.
const (
	EventScanProgress = "scan_progress"
	EventScanComplete = "scan_complete"
	EventScanError    = "scan_error"
	EventClientReady  = "client_ready"
)

// EventKind identifies a listener category of the event client.
type EventKind string

const (
	KindProgress   EventKind = "progress"
	KindComplete   EventKind = "complete"
	KindError      EventKind = "error"
	KindConnect    EventKind = "connect"
	KindDisconnect EventKind = "disconnect"
)

// Event is a payload that can be broadcast on the push channel.
type Event interface {
	// EventName is the wire name of the event.
	EventName() string
}

// ClientReady is sent by a client once its channel is open.
type ClientReady struct {
	ScanID string `json:"scan_id"`
}

func (ClientReady) EventName() string { return EventClientReady }

// ProgressEvent reports a human readable progress step.
type ProgressEvent struct {
	ScanID  string `json:"scan_id"`
	Message string `json:"message"`
}

func (ProgressEvent) EventName() string { return EventScanProgress }

// CompleteEvent carries the results of a finished scan. The results are
// flattened next to scan_id on the wire.
type CompleteEvent struct {
	ScanID string `json:"scan_id"`
	ScanResults
}

func (CompleteEvent) EventName() string { return EventScanComplete }

// ErrorEvent reports a failed scan.
type ErrorEvent struct {
	ScanID string `json:"scan_id"`
	Error  string `json:"error"`
}

func (ErrorEvent) EventName() string { return EventScanError }
