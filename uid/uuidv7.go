package uid

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator interface {
	New() (string, error)
}

type UUIDV7 struct{}

func NewUUIDV7() *UUIDV7 {
	return &UUIDV7{}
}

func (u *UUIDV7) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("uid: generate uuidv7: %w", err)
	}
	return id.String(), nil
}

// Sequence yields prefix-1, prefix-2, ... and never fails. Handy where
// identifiers must be predictable, such as tests and in-memory transports.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) New() (string, error) {
	return fmt.Sprintf("%s-%d", s.prefix, s.n.Add(1)), nil
}

// MustNew returns g.New() or falls back to a random v4 UUID when g fails.
func MustNew(g Generator) string {
	if g != nil {
		if id, err := g.New(); err == nil {
			return id
		}
	}
	return uuid.NewString()
}
