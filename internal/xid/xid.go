package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random UUID, e.g. "sale-6f1c...".
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s-%s", prefix, id)
}

// Valid reports whether id was produced by New with the given prefix.
func Valid(prefix string, id string) bool {
	if prefix != "" {
		if !strings.HasPrefix(id, prefix+"-") {
			return false
		}
		id = strings.TrimPrefix(id, prefix+"-")
	}
	_, err := uuid.Parse(id)
	return err == nil
}
