package adapter

import "errors"

var (
	// ErrSourceExists is returned when registering a second source under the same name
	ErrSourceExists = errors.New("source already registered")

	// ErrNmapUnavailable is returned when the nmap binary cannot be run
	ErrNmapUnavailable = errors.New("nmap binary not found in PATH")

	// ErrInvalidPort is returned for malformed port lists
	ErrInvalidPort = errors.New("invalid port")

	// ErrInvalidInventory is returned for inventory files that cannot be used
	ErrInvalidInventory = errors.New("invalid inventory")

	// ErrNoAddress is returned when probing a system without an address
	ErrNoAddress = errors.New("no address to probe")
)
