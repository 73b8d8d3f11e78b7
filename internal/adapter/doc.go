// Package adapter discovers external systems and turns them into profiles.
//
// A Source produces raw records: the nmap source scans networks, the inventory
// source reads a YAML file. The Registry runs every registered source, builds
// profiles from their records and enriches each profile by kind:
//
//   - iot_device profiles with an address get a TCP liveness probe
//   - cloud_service profiles are left for credential lookup at connect time
//   - profiles of unknown kind are logged and kept as they are
//
// Enrichment runs concurrently, bounded by the configured probe limit.
package adapter
