package utils

import (
	"crypto/sha256"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateMessageID synthesizes a stable RFC 5322 id for messages that arrive
// without one. The same metadata always yields the same id, so re-fetching an
// id-less message does not create a second email row.
func GenerateMessageID(domain, metadata string) string {
	if metadata == "" {
		id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 16)
		if err != nil {
			panic(err)
		}
		return fmt.Sprintf("<%s@%s>", id, domain)
	}
	hash := sha256.Sum256([]byte(metadata))
	return fmt.Sprintf("<%x@%s>", hash[:12], domain)
}
