package domain

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewID returns prefix-<ulid>. The ULID carries a millisecond timestamp and
// 80 random bits, so ids sort by creation time and do not collide in-process.
func NewID(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
