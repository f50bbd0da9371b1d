package showerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(KindIndex, "index %d out of range", 7)

	assert.Equal(t, KindIndex, err.Kind)
	assert.Equal(t, "IndexError: index 7 out of range", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindClock, cause, "load %s", "a.flac")

	assert.Equal(t, "ClockError: load a.flac: connection refused", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, Wrap(KindClock, nil, "nothing"))
}

func TestKindOf_WrappedChain(t *testing.T) {
	err := fmt.Errorf("seek failed: %w", New(KindInvalidState, "not playing"))

	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.True(t, IsKind(err, KindInvalidState))
	assert.False(t, IsKind(err, KindIndex))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestErrorsIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindEncoding, "volume 200 out of range"))

	assert.True(t, errors.Is(err, &Error{Kind: KindEncoding}))
	assert.False(t, errors.Is(err, &Error{Kind: KindHardware}))
}
