package xid

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

var (
	numericMu   sync.Mutex
	lastNumeric int64
)

// Numeric returns epoch-millisecond ids, bumped when two are requested within
// the same millisecond so ledger ids stay unique and increasing.
func Numeric(now time.Time) int64 {
	id := now.UnixMilli()

	numericMu.Lock()
	defer numericMu.Unlock()
	if id <= lastNumeric {
		id = lastNumeric + 1
	}
	lastNumeric = id
	return id
}
