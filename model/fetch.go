package model

import (
	"github.com/GaoLiaoLiao/delern/rtdb"
)

// FetchCount reports the number of direct children returned by q, when
// first available and then every time it changes.
func FetchCount(q rtdb.Listenable, l *DataAvailableListener[int64]) {
	// TODO: use child events once rtdb has them, so children are not transferred.
	listen(q, l, func(s *rtdb.Snapshot) {
		l.data(int64(s.ChildrenCount()))
	})
}

// FetchChild fetches a single model, the node q points at, and watches it for
// changes. The model's parent is set to parent. A missing node is delivered
// as nil.
func FetchChild[T any, PT ptrModel[T]](parent Parent, q rtdb.Listenable, l *DataAvailableListener[PT]) {
	listen(q, l, func(s *rtdb.Snapshot) {
		m, err := FromSnapshot[T, PT](s, parent)
		if err != nil {
			l.error(err)
			return
		}
		l.data(m)
	})
}

// FetchChildren is like FetchChild, but q points at a list of models, which
// are delivered in query order.
func FetchChildren[T any, PT ptrModel[T]](parent Parent, q rtdb.Listenable, l *DataAvailableListener[[]PT]) {
	listen(q, l, func(s *rtdb.Snapshot) {
		children := s.Children()
		items := make([]PT, 0, len(children))
		for _, child := range children {
			m, err := FromSnapshot[T, PT](child, parent)
			if err != nil {
				l.error(err)
				return
			}
			items = append(items, m)
		}
		l.data(items)
	})
}

// Watch fetches m itself and watches it for changes. Every change produces a
// new object with the same parent as m; m is not updated in place.
func Watch[T any, PT ptrModel[T]](m PT, l *DataAvailableListener[PT]) {
	ref, err := Reference(m)
	if err != nil {
		l.Cleanup()
		l.error(err)
		return
	}
	parent := m.Parent()
	listen(ref, l, func(s *rtdb.Snapshot) {
		fresh, err := FromSnapshot[T, PT](s, parent)
		if err != nil {
			l.error(err)
			return
		}
		l.data(fresh)
	})
}
