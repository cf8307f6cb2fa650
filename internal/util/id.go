package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed identifier like "blk_6f1c...". Prefixes keep
// IDs self-describing in logs and API payloads.
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
