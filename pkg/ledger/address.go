package ledger

import (
	"fmt"
	"strings"
)

// NormalizeAddress validates the shape of a principal address and returns its
// canonical lower-case form. All principal records are keyed by the normalized
// address, so every external address must pass through here before touching
// the store or the ledger.
//
// A malformed address is the only input the engine rejects synchronously.
func NormalizeAddress(address string) (string, error) {
	addr := strings.TrimSpace(address)
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", fmt.Errorf("invalid address %q: missing 0x prefix", address)
	}

	hexPart := addr[2:]
	if len(hexPart) != 40 {
		return "", fmt.Errorf("invalid address %q: expected 40 hex characters, got %d", address, len(hexPart))
	}

	for _, r := range hexPart {
		if !isHexDigit(r) {
			return "", fmt.Errorf("invalid address %q: non-hex character %q", address, r)
		}
	}

	return "0x" + strings.ToLower(hexPart), nil
}

// IsValidAddress reports whether address has a valid shape.
func IsValidAddress(address string) bool {
	_, err := NormalizeAddress(address)
	return err == nil
}

func isHexDigit(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'f':
		return true
	case r >= 'A' && r <= 'F':
		return true
	}
	return false
}
