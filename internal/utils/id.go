package utils

import (
	"crypto/rand"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var ulidPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

// clientIDPattern bounds what a client may send as its own message id.
var clientIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a time-ordered ULID. IDs minted within the same millisecond by
// this process are strictly increasing.
func NewID() string {
	return NewIDAt(time.Now())
}

func NewIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		// monotonic entropy overflowed inside one millisecond; start a fresh sequence
		entropy = ulid.Monotonic(rand.Reader, 0)
		id = ulid.MustNew(ulid.Timestamp(t), entropy)
	}
	return id.String()
}

func IsULID(s string) bool {
	return ulidPattern.MatchString(s)
}

func ValidClientID(s string) bool {
	return clientIDPattern.MatchString(s)
}
