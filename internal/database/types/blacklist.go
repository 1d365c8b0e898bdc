package types

import (
	"encoding/base64"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/uptrace/bun"
)

// BlacklistRecord represents a user on the global blacklist.
// Records are immutable once created except for deletion.
type BlacklistRecord struct {
	bun.BaseModel `bun:"table:blacklist"`

	ID       uint64    `bun:",pk"`         // Discord user ID
	Name     string    `bun:",notnull"`    // Display name at the time of blacklisting
	Reason   []byte    `bun:",type:bytea"` // Opaque reason payload
	BannedAt time.Time `bun:",notnull"`    // When the user was blacklisted
}

// ReasonText decodes the opaque reason for display.
// Rows imported from the legacy bot hold base64 encoded UTF-8, anything else
// is shown as stored.
func (r *BlacklistRecord) ReasonText() string {
	if len(r.Reason) == 0 {
		return ""
	}

	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(r.Reason)))

	n, err := base64.StdEncoding.Decode(decoded, r.Reason)
	if err == nil && n > 0 && isPrintable(decoded[:n]) {
		return string(decoded[:n])
	}

	return string(r.Reason)
}

func isPrintable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}

	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
