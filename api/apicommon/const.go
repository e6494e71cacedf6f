// Package apicommon provides common types, constants, and helper functions for the API.
package apicommon

// MetadataKey is a type to define the key for the metadata stored in the
// context.
type MetadataKey string

// AdminMetadataKey is the key used to store the admin user in the context.
const AdminMetadataKey MetadataKey = "admin"

const (
	// DefaultPageSize is the page size of listings when none is requested.
	DefaultPageSize = 20
	// MaxPageSize caps the page size a client can request.
	MaxPageSize = 100
)
