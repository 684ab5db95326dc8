package ledger

import (
	"fmt"

	"golang.org/x/crypto/sha3"
)

// ContentID derives the 32-byte content identifier for an interaction record.
// Non-empty metadata is hashed as-is; otherwise a canonical string built from
// the participants and interaction type is used. Repeated identical
// interactions may share a content identifier; uniqueness is not required.
func ContentID(initiator, responder string, interactionType int, metadata string) [32]byte {
	input := metadata
	if input == "" {
		input = fmt.Sprintf("%s:%s:%d", initiator, responder, interactionType)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(input))

	var id [32]byte
	copy(id[:], h.Sum(nil))
	return id
}
