// Package id provides unique identifier generation for conversion jobs.
package id

import "github.com/google/uuid"

// Prefix is prepended to every generated ID.
const Prefix = "conv-"

// Generate creates a new unique job ID.
// Format: conv-<uuid v4>
// Example: conv-9b2f0c1e-6d3a-4f7e-8a51-2c4d9e0f1a2b
func Generate() string {
	return Prefix + uuid.NewString()
}
