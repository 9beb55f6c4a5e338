package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScanID uniquely identifies a single scan run.
// It wraps uuid.UUID to provide type safety at the domain layer.
type ScanID uuid.UUID

// NewScanID returns a random ScanID.
func NewScanID() ScanID { return ScanID(uuid.New()) }

// String returns the canonical textual form of the ID.
func (id ScanID) String() string { return uuid.UUID(id).String() }

// MarshalText encodes the ID in its canonical textual form.
func (id ScanID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText decodes an ID from its textual form.
func (id *ScanID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// ScanRequest describes one scan: the address, its domain and the selected methods.
type ScanRequest struct {
	// MailAddress is the address as given by the caller.
	MailAddress string
	// Domain is the domain part of MailAddress.
	Domain string
	// Mask selects the methods to run. A zero mask selects all methods.
	Mask MethodMask
}

// NewScanRequest validates raw and builds a request for it.
func NewScanRequest(raw string, mask MethodMask) (ScanRequest, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return ScanRequest{}, err
	}

	return ScanRequest{MailAddress: addr.Raw, Domain: addr.Domain, Mask: mask}, nil
}

// ScanInfo is the metadata half of a scan report.
type ScanInfo struct {
	ID          ScanID    `json:"scan_id"`
	Email       string    `json:"email"`
	Domain      string    `json:"domain"`
	Timestamp   time.Time `json:"timestamp"`
	MethodsUsed []Method  `json:"methods_used"`
}

// ScanResult is the report of one scan: what ran and what every method returned.
// Results holds each method's output, or a MethodError when the method failed.
type ScanResult struct {
	ScanInfo ScanInfo       `json:"scan_info"`
	Results  map[Method]any `json:"results"`
}

// MethodError is the error-as-data payload stored for a method that failed.
type MethodError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
