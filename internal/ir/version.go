package ir

// Version constants for stored records and the binary.
const (
	// SchemaVersion is the version of the stored record encodings.
	SchemaVersion = "1"

	// Version is the tiplink release version.
	Version = "0.1.0"
)
