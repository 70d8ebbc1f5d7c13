package gatoshash

import (
	"crypto/rand"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// ulidAlphabet is Crockford's base32, uppercase, as pinned by spec §3.
const ulidAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ValidateULID checks that s is a well-formed ULID: 26 ASCII characters
// drawn from the Crockford base32 alphabet (spec §4.1 validate_ulid).
func ValidateULID(s string) error {
	if len(s) != 26 {
		return fmt.Errorf("%w: want 26 characters, got %d", gatoserr.ErrInvalidUlid, len(s))
	}
	for i := 0; i < len(s); i++ {
		if !isULIDChar(s[i]) {
			return fmt.Errorf("%w: disallowed character %q at position %d", gatoserr.ErrInvalidUlid, s[i], i)
		}
	}
	// ulid.ParseStrict additionally rejects values whose high bits would
	// overflow the 128-bit representation — a 26-char string can encode
	// more than 128 bits of alphabet, so strict parsing is required to
	// reject those out-of-range strings even though every character is
	// individually legal.
	if _, err := ulid.ParseStrict(s); err != nil {
		return fmt.Errorf("%w: %v", gatoserr.ErrInvalidUlid, err)
	}
	return nil
}

func isULIDChar(c byte) bool {
	for i := 0; i < len(ulidAlphabet); i++ {
		if ulidAlphabet[i] == c {
			return true
		}
	}
	return false
}

// NewULID generates a new ULID for timestamp ms (milliseconds since epoch)
// with random entropy from crypto/rand; two ULIDs minted for the same ms are
// not ordered relative to each other. Used by RPC clients and tests that need to
// mint envelope identifiers. The core components never generate ULIDs
// themselves — envelopes arrive with one already assigned (spec §3).
func NewULID(ms uint64) (string, error) {
	id, err := ulid.New(ms, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("gatos: ulid generation failed: %w", err)
	}
	return id.String(), nil
}
