package addhost

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	// ErrInvalidArgument is returned for malformed or inconsistent requests
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidMACAddress is returned when a supplied MAC address cannot be parsed
	ErrInvalidMACAddress = errors.New("invalid MAC address")
)

// Exhaustion errors. Both also match ErrInvalidArgument.
var (
	ErrNameSpaceExhausted    = fmt.Errorf("%w: unable to generate node name", ErrInvalidArgument)
	ErrAddressSpaceExhausted = fmt.Errorf("%w: unable to allocate IP address", ErrInvalidArgument)
)

// Lookup errors
var (
	ErrNotFound                = errors.New("not found")
	ErrNetworkNotFound         = errors.New("network not found")
	ErrNicNotFound             = errors.New("NIC not found")
	ErrNodeNotFound            = errors.New("node not found")
	ErrResourceAdapterNotFound = errors.New("resource adapter not found")
	ErrHardwareProfileNotFound = errors.New("hardware profile not found")
	ErrSoftwareProfileNotFound = errors.New("software profile not found")
)

// Conflict errors. Only ErrConflict is retriable: a concurrent writer won a
// race on a uniqueness constraint.
var (
	ErrConflict                = errors.New("conflict")
	ErrNodeAlreadyExists       = errors.New("node already exists")
	ErrMACAddressAlreadyExists = errors.New("MAC address already exists")
)
