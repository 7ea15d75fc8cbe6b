package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID returns a prefixed unique identifier, e.g. "bid_1b9d6bcd...".
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}
