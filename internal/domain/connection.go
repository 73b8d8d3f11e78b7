package domain

import "time"

// ConnectionState is the lifecycle state of a connection
type ConnectionState string

const (
	StatePending  ConnectionState = "pending"
	StateActive   ConnectionState = "active"
	StateDegraded ConnectionState = "degraded"
	StateClosed   ConnectionState = "closed"
)

// CloseReason records why a connection reached the closed state
type CloseReason string

const (
	CloseNone               CloseReason = ""
	CloseIncompatibleChange CloseReason = "incompatible_change"
	ClosePermanentFailure   CloseReason = "permanent_failure"
	CloseDisconnected       CloseReason = "disconnected"
)

// PairKey identifies an unordered pair of systems. A is always <= B.
type PairKey struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewPairKey normalizes the pair so the same two systems always produce the same key
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// String renders the key as "a|b"
func (k PairKey) String() string {
	return k.A + "|" + k.B
}

// Involves checks if this pair contains the given system
func (k PairKey) Involves(systemID string) bool {
	return k.A == systemID || k.B == systemID
}

// InterfacePair is the compatible interface pair chosen for a connection.
// A is the interface on PairKey.A, B the one on PairKey.B.
type InterfacePair struct {
	A Endpoint `json:"a"`
	B Endpoint `json:"b"`
}

// Connection is the lifecycle-managed pairing between two systems
type Connection struct {
	ID             string          `json:"id"`
	Pair           PairKey         `json:"pair"`
	State          ConnectionState `json:"state"`
	Selected       *InterfacePair  `json:"selected_interfaces,omitempty"`
	AttemptCount   int             `json:"attempt_count"`
	LastError      string          `json:"last_error,omitempty"`
	LastErrorKind  ErrorKind       `json:"last_error_kind,omitempty"`
	CloseReason    CloseReason     `json:"close_reason,omitempty"`
	InFlight       bool            `json:"in_flight"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivityAt time.Time       `json:"last_activity_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// IsClosed reports whether the connection reached its terminal state
func (c *Connection) IsClosed() bool {
	return c.State == StateClosed
}

// Transition records a single state change for observers
type Transition struct {
	ConnectionID string          `json:"connection_id"`
	Pair         PairKey         `json:"pair"`
	From         ConnectionState `json:"from"`
	To           ConnectionState `json:"to"`
	Reason       string          `json:"reason,omitempty"`
	At           time.Time       `json:"at"`
}
