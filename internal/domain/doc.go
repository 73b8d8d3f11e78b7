// Package domain defines the core types of the interlink integration engine.
//
// This package contains the entities and value objects shared by discovery,
// compatibility analysis, connection lifecycle management and data relay.
//
// # Core Types
//
// SystemProfile describes one discovered external system (cloud service, IoT
// device, or unknown endpoint) with its ordered interfaces, optional credentials
// and last known reachability.
//
// Interface is one named, protocol-tagged capability surface of a system.
//
// CompatibilityMap is an immutable, symmetric snapshot of which interfaces can
// talk to which. It is rebuilt wholesale on every analysis pass.
//
// Connection is the lifecycle-managed pairing between two systems, keyed by an
// unordered PairKey, moving through pending, active, degraded and closed.
//
// # Errors
//
// errors.go holds the sentinel error taxonomy (ErrUnreachable, ErrIncompatible,
// ErrTransientTransport, ErrPermanentFailure, ErrOracleUnavailable, ErrNotActive,
// ErrNotFound). Callers match with errors.Is; KindOf classifies an error for
// recording on a Connection.
//
// # Design Principles
//
// - Immutable value objects where possible
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
package domain
