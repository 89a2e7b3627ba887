package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndIsType(t *testing.T) {
	err := New(ErrorTypeNotFound, "no such container")
	assert.Equal(t, "not_found: no such container", err.Error())
	assert.True(t, IsType(err, ErrorTypeNotFound))
	assert.False(t, IsType(err, ErrorTypeBackend))
	assert.NotEmpty(t, err.Stack)
}

func TestWrapPreservesCauseAndType(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrapf(cause, ErrorTypeBackend, "cannot write container %s", "a.strm")

	assert.True(t, IsType(err, ErrorTypeBackend))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeBackend, "ignored"))
}

func TestIsTypeSeesThroughWrapping(t *testing.T) {
	inner := New(ErrorTypeUnsupported, "no such callback")
	outer := fmt.Errorf("dispatch: %w", inner)
	assert.True(t, IsUnsupported(outer))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeConfig, "bad connector").WithDetail("connector", "ghost")
	assert.Equal(t, "ghost", err.Details["connector"])
}

func TestStackRecordsInOrder(t *testing.T) {
	s := NewStack()
	assert.True(t, s.Empty())

	s.Raise(New(ErrorTypeBackend, "primary"))
	s.RaiseOnUnwind(New(ErrorTypeBackend, "cleanup"))
	s.Raise(nil)

	require.Equal(t, 2, s.Len())
	entries := s.Entries()
	assert.False(t, entries[0].Unwind)
	assert.Equal(t, "primary", entries[0].Err.Message)
	assert.True(t, entries[1].Unwind)

	s.Clear()
	assert.True(t, s.Empty())
}

func TestStackWrapsUntypedErrors(t *testing.T) {
	s := NewStack()
	s.Raise(stderrors.New("plain"))

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ErrorTypeInternal, entries[0].Err.Type)
	assert.ErrorIs(t, entries[0].Err, entries[0].Err.Cause)
}

func TestDefaultStack(t *testing.T) {
	ClearStack()
	defer ClearStack()

	Raise(New(ErrorTypeBackend, "boom"))
	assert.Equal(t, 1, DefaultStack().Len())
	RaiseOnUnwind(New(ErrorTypeBackend, "while closing"))
	assert.Equal(t, 2, DefaultStack().Len())
}
