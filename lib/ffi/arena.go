package ffi

import (
	"errors"
	"sync"
)

// Handle names a buffer owned by an Arena until it is released.
type Handle uint64

var ErrUnknownHandle = errors.New("unknown or already released handle")

// Arena owns every buffer handed across the boundary. Each handle must be
// released exactly once.
type Arena struct {
	lk    sync.Mutex
	next  Handle
	items map[Handle][]byte
}

func NewArena() *Arena {
	return &Arena{items: map[Handle][]byte{}}
}

func (a *Arena) Put(b []byte) Handle {
	a.lk.Lock()
	defer a.lk.Unlock()

	a.next++
	a.items[a.next] = b
	outstandingHandles.Add(1)
	return a.next
}

func (a *Arena) Get(h Handle) ([]byte, error) {
	a.lk.Lock()
	defer a.lk.Unlock()

	b, ok := a.items[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return b, nil
}

func (a *Arena) Release(h Handle) error {
	a.lk.Lock()
	defer a.lk.Unlock()

	if _, ok := a.items[h]; !ok {
		return ErrUnknownHandle
	}
	delete(a.items, h)
	outstandingHandles.Add(-1)
	return nil
}

// Export hands the buffer behind h to out. If out fails the host never
// receives the buffer, so h is released here.
func (a *Arena) Export(h Handle, out func([]byte) error) error {
	b, err := a.Get(h)
	if err != nil {
		return err
	}
	if err := out(b); err != nil {
		_ = a.Release(h)
		return err
	}
	return nil
}

func (a *Arena) Outstanding() int {
	a.lk.Lock()
	defer a.lk.Unlock()
	return len(a.items)
}

// ReleaseAll drops every outstanding handle and returns how many there were.
func (a *Arena) ReleaseAll() int {
	a.lk.Lock()
	defer a.lk.Unlock()

	n := len(a.items)
	a.items = map[Handle][]byte{}
	outstandingHandles.Add(-int64(n))
	return n
}
