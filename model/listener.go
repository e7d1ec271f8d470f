package model

import (
	"sync"

	"github.com/GaoLiaoLiao/delern/logging"
	"github.com/GaoLiaoLiao/delern/rtdb"
)

// DataAvailableListener receives data fetched by FetchChild, FetchChildren,
// Watch and FetchCount, first when it is available and then after every
// change. Call Cleanup to stop the updates and release the database listener.
//
// A listener serves one fetch at a time: passing it to another fetch cleans
// up the previous one.
type DataAvailableListener[T any] struct {
	// OnData receives each new value.
	OnData func(T)
	// OnError receives errors from the database and from decoding. The
	// listener stays registered after decoding errors. If nil, errors are
	// logged.
	OnError func(error)

	mu  sync.Mutex
	gen uint64 // bumped by every fetch and by Cleanup
	reg rtdb.Registration
}

// NewListener returns a listener calling onData and onError.
func NewListener[T any](onData func(T), onError func(error)) *DataAvailableListener[T] {
	return &DataAvailableListener[T]{OnData: onData, OnError: onError}
}

// Cleanup removes the database listener. It is safe to call repeatedly, and
// from within OnData or OnError.
func (l *DataAvailableListener[T]) Cleanup() {
	l.mu.Lock()
	l.gen++
	reg := l.reg
	l.reg = nil
	l.mu.Unlock()
	if reg != nil {
		reg.Remove()
	}
}

// start begins a new fetch, removing the registration of the previous one,
// and returns the generation identifying it.
func (l *DataAvailableListener[T]) start() uint64 {
	l.mu.Lock()
	l.gen++
	gen := l.gen
	prev := l.reg
	l.reg = nil
	l.mu.Unlock()
	if prev != nil {
		prev.Remove()
	}
	return gen
}

// pair records reg as the registration of fetch gen. If the listener was
// cleaned up or reused in the meantime, reg is removed instead.
func (l *DataAvailableListener[T]) pair(gen uint64, reg rtdb.Registration) {
	l.mu.Lock()
	if l.gen != gen {
		l.mu.Unlock()
		reg.Remove()
		return
	}
	l.reg = reg
	l.mu.Unlock()
}

// current reports whether fetch gen still owns the listener.
func (l *DataAvailableListener[T]) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

func (l *DataAvailableListener[T]) data(v T) {
	if l.OnData != nil {
		l.OnData(v)
	}
}

func (l *DataAvailableListener[T]) error(err error) {
	if l.OnError != nil {
		l.OnError(err)
		return
	}
	logging.Errorf("error loading data: %s", err)
}

// listen registers fn on q, routing cancellation to l, and pairs the
// registration with l. The fetch is started before registering, so a
// Cleanup from the very first callback still removes the registration.
// Events for a fetch that no longer owns l are dropped.
func listen[T any](q rtdb.Listenable, l *DataAvailableListener[T], fn func(*rtdb.Snapshot)) {
	gen := l.start()
	l.pair(gen, q.AddValueListener(rtdb.ValueListenerFuncs{
		DataChange: func(s *rtdb.Snapshot) {
			if l.current(gen) {
				fn(s)
			}
		},
		Cancelled: func(err error) {
			if l.current(gen) {
				l.error(err)
			}
		},
	}))
}
