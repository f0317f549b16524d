// Package txnid generates human-scannable withdrawal transaction identifiers:
// a fixed "WD" prefix, the current unix-millisecond timestamp in uppercase
// base 36, and a 4-character random suffix. The timestamp keeps identifiers
// roughly sortable and cheap to eyeball; the suffix separates calls landing in
// the same millisecond. Collisions are made negligible here, not impossible;
// the store's unique index on transaction_id is the actual guarantee.
package txnid

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
)

const (
	// Prefix marks every identifier produced by this package.
	Prefix = "WD"

	suffixLen = 4
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// New returns a fresh transaction identifier.
func New() string {
	var b strings.Builder
	b.Grow(len(Prefix) + 10 + suffixLen)
	b.WriteString(Prefix)
	b.WriteString(strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36)))

	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform entropy source is broken;
		// nothing sensible to degrade to.
		panic(err)
	}
	for _, c := range buf {
		b.WriteByte(alphabet[int(c)%len(alphabet)])
	}
	return b.String()
}

// Timestamp decodes the embedded creation time of an identifier produced by
// New. It returns false if id does not look like one of ours.
func Timestamp(id string) (time.Time, bool) {
	if !strings.HasPrefix(id, Prefix) || len(id) <= len(Prefix)+suffixLen {
		return time.Time{}, false
	}
	ts := strings.ToLower(id[len(Prefix) : len(id)-suffixLen])
	ms, err := strconv.ParseInt(ts, 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
