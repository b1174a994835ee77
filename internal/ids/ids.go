// Package ids generates sortable unique identifiers for refresh-token rows,
// JWT ids and request ids.
package ids

import "github.com/oklog/ulid/v2"

// New returns a ULID string. The shared entropy source is monotonic within a
// millisecond and safe for concurrent use.
func New() string {
	return ulid.Make().String()
}
