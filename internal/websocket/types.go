package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/pdn-sentinel/internal/report"
	"github.com/raaihank/pdn-sentinel/internal/workflow"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeScanCompleted is sent after every scan, anonymize or process run
	EventTypeScanCompleted EventType = "scan_completed"
	// EventTypeDocumentBlocked is sent when a document is blocked
	EventTypeDocumentBlocked EventType = "document_blocked"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// ScanEvent summarizes a finished run. Literal values are never broadcast,
// only counts per category.
type ScanEvent struct {
	RequestID    string         `json:"request_id,omitempty"`
	DocumentID   string         `json:"document_id,omitempty"`
	Document     string         `json:"document,omitempty"`
	Kind         string         `json:"kind"`
	Status       string         `json:"status"`
	Categories   map[string]int `json:"categories"`
	TotalMatches int            `json:"total_matches"`
	ProcessingMS float64        `json:"processing_ms"`
}

// BlockedEvent reports a blocked document and the law that blocks it
type BlockedEvent struct {
	RequestID  string   `json:"request_id,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	Document   string   `json:"document,omitempty"`
	Categories []string `json:"categories"`
	LegalBasis string   `json:"legal_basis"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
	Profile          string `json:"profile"`
	ActiveCategories int    `json:"active_categories"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscriptionRequest limits the events a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}

// Review message types
const (
	ReviewStart           = "start"
	ReviewDecision        = "decision"
	ReviewDecisionRequest = "decision_request"
	ReviewInvalid         = "invalid"
	ReviewResult          = "result"
	ReviewError           = "error"
)

// ReviewMessage is the envelope of the review protocol
type ReviewMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StartReview opens a review of one document
type StartReview struct {
	Document string `json:"document,omitempty"`
	Text     string `json:"text"`
}

// DecisionAnswer answers a decision request; Answer takes the a/b/c forms
type DecisionAnswer struct {
	Index  int    `json:"index"`
	Answer string `json:"answer"`
}

// ReviewOutcome closes a review session
type ReviewOutcome struct {
	Result *workflow.Result `json:"result"`
	Report *report.Report   `json:"report"`
	Error  string           `json:"error,omitempty"`
}

// Notice carries an error or invalid-answer message
type Notice struct {
	Message string `json:"message"`
}
