package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const (
	PrefixCase         = "CASE"
	PrefixRegistration = "REG"
	PrefixReferral     = "REF"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a random record id.
func New() string {
	return uuid.NewString()
}

// Number returns a sortable human-facing record number such as CASE-01J...
// Numbers minted within the same millisecond still sort in creation order.
func Number(prefix string, at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return prefix + "-" + ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
