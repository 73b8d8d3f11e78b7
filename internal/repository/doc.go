// Package repository defines the persistence interface for profile snapshots.
//
// The profile store itself performs no I/O. The service layer saves a snapshot
// after each discovery refresh and restores it at startup so the engine knows
// previously seen systems before the first refresh completes. The sqlite
// subpackage provides the implementation.
package repository
