package uid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDV7New(t *testing.T) {
	g := NewUUIDV7()

	id, err := g.New()
	require.NoError(t, err)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestSequence(t *testing.T) {
	s := NewSequence("msg")

	first, _ := s.New()
	second, _ := s.New()

	assert.Equal(t, "msg-1", first)
	assert.Equal(t, "msg-2", second)
}

type failing struct{}

func (failing) New() (string, error) { return "", assert.AnError }

func TestMustNewFallsBack(t *testing.T) {
	id := MustNew(failing{})
	_, err := uuid.Parse(id)
	assert.NoError(t, err)

	assert.Equal(t, "x-1", MustNew(NewSequence("x")))
}
