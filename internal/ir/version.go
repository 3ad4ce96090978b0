package ir

// Version constants for persisted state and the service.
const (
	// StateFormatVersion is the version of the canonical snapshot layout.
	// Bump when the digest input changes shape.
	StateFormatVersion = "1"

	// ServiceVersion is the soulbound service version.
	ServiceVersion = "0.1.0"
)
