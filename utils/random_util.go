package utils

import (
	"log"

	"github.com/google/uuid"
)

// GetUUID generates the per-PathConvert tag used in synthetic source
// keys and the watch tokens.
func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		log.Fatal(err)
	}
	return u1.String()
}
