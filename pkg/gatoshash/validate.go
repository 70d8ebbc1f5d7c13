package gatoshash

import (
	"fmt"
	"unicode"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// ValidateEventType checks event_type against spec §3/§4.1: length 1..=64,
// alphanumerics plus '.', '-', '_', no newlines or control characters.
func ValidateEventType(s string) error {
	if len(s) < 1 || len(s) > 64 {
		return fmt.Errorf("%w: length must be 1..=64, got %d", gatoserr.ErrInvalidEventType, len(s))
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", gatoserr.ErrInvalidEventType)
		}
		if r == '.' || r == '-' || r == '_' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return fmt.Errorf("%w: disallowed character %q", gatoserr.ErrInvalidEventType, r)
	}
	return nil
}

// MaxPayloadBytes is the canonical-bytes payload ceiling (spec §3: 1 MiB).
const MaxPayloadBytes = 1 << 20

// ValidatePayloadSize rejects canonical payload bytes over MaxPayloadBytes.
func ValidatePayloadSize(canonicalPayload []byte) error {
	if len(canonicalPayload) > MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes exceeds %d byte limit", gatoserr.ErrPayloadTooLarge, len(canonicalPayload), MaxPayloadBytes)
	}
	return nil
}
