package id

import (
	"strings"

	"github.com/google/uuid"
)

// Reference returns a ledger-safe reference such as "STL-3F9A0C1B2D4E".
func Reference(prefix string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(prefix) + "-" + strings.ToUpper(raw[:12])
}

func IsValidUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
