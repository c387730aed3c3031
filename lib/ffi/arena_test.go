package ffi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaSingleRelease(t *testing.T) {
	a := NewArena()

	h1 := a.Put([]byte("one"))
	h2 := a.Put([]byte("two"))
	require.NotEqual(t, h1, h2)
	require.Equal(t, 2, a.Outstanding())

	b, err := a.Get(h1)
	require.NoError(t, err)
	require.Equal(t, "one", string(b))

	require.NoError(t, a.Release(h1))
	require.ErrorIs(t, a.Release(h1), ErrUnknownHandle)
	_, err = a.Get(h1)
	require.ErrorIs(t, err, ErrUnknownHandle)
	require.ErrorIs(t, a.Release(Handle(999)), ErrUnknownHandle)

	require.Equal(t, 1, a.Outstanding())
	require.Equal(t, 1, a.ReleaseAll())
	require.Zero(t, a.Outstanding())
	require.ErrorIs(t, a.Release(h2), ErrUnknownHandle)
}

func TestArenaHandlesNotReused(t *testing.T) {
	a := NewArena()
	h := a.Put(nil)
	require.NoError(t, a.Release(h))
	require.NotEqual(t, h, a.Put(nil))
}

func TestArenaExport(t *testing.T) {
	a := NewArena()

	h := a.Put([]byte("env"))
	var got string
	require.NoError(t, a.Export(h, func(b []byte) error {
		got = string(b)
		return nil
	}))
	require.Equal(t, "env", got)
	require.Equal(t, 1, a.Outstanding())
	require.NoError(t, a.Release(h))

	failed := errors.New("copy failed")
	h = a.Put([]byte("lost"))
	require.ErrorIs(t, a.Export(h, func([]byte) error { return failed }), failed)
	require.Zero(t, a.Outstanding())
	require.ErrorIs(t, a.Release(h), ErrUnknownHandle)

	require.ErrorIs(t, a.Export(Handle(999), func([]byte) error { return nil }), ErrUnknownHandle)
	require.Zero(t, a.Outstanding())
}
