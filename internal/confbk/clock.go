package confbk

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so default output names are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the local wall-clock time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator produces run IDs.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
