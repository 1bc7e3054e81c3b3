// Package storage defines the case-file directory abstraction used for
// both the monitored directory and the work directory.
package storage

import "casewatch/internal/models"

// Provider is the interface for case-file operations rooted at one
// directory.
type Provider interface {
	// List returns metadata for every file matching pattern (a filename
	// suffix such as ".txt") directly under the root, with the case id
	// taken from the filename stem and the fingerprint computed from
	// content.
	List(suffix string) ([]models.CaseFile, error)
	// Read returns the raw bytes of the file at name (relative to root).
	Read(name string) ([]byte, error)
	// Write atomically writes content to name (relative to root).
	Write(name string, content []byte) error
	// Delete removes the file at name (relative to root).
	Delete(name string) error
}
