package model

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/GaoLiaoLiao/delern/rtdb"
)

// RootKind is the kind of a Root.
const RootKind Kind = "root"

// Root is the parentless top of a model hierarchy. It places children of each
// kind at a fixed path of its database.
type Root struct {
	Base
	db     *rtdb.DB
	layout map[Kind]string
}

var _ Parent = &Root{}

// NewRoot returns a root over db. layout maps each child kind to the path
// holding all children of that kind.
func NewRoot(db *rtdb.DB, layout map[Kind]string) *Root {
	return &Root{db: db, layout: layout}
}

// Kind returns RootKind.
func (*Root) Kind() Kind {
	return RootKind
}

// DB returns the database the root maps.
func (r *Root) DB() *rtdb.DB {
	return r.db
}

// ChildReference returns the location configured for kind.
func (r *Root) ChildReference(kind Kind) (rtdb.Ref, error) {
	path, ok := r.layout[kind]
	if !ok {
		return rtdb.Ref{}, errors.Errorf("root has no children of kind %q", kind)
	}
	ref := r.db.Ref(path)
	return ref, ref.Err()
}

func (r *Root) String() string {
	return "root"
}

// NodeKind is the kind of a Node.
const NodeKind Kind = "node"

// Node is a schemaless model holding whatever JSON value is stored at its
// location.
type Node struct {
	Base
	Data interface{}
}

var (
	_ Valuer           = &Node{}
	_ json.Unmarshaler = &Node{}
)

// Kind returns NodeKind.
func (*Node) Kind() Kind {
	return NodeKind
}

// FirebaseValue returns n.Data.
func (n *Node) FirebaseValue() interface{} {
	return n.Data
}

// UnmarshalJSON stores the decoded value in n.Data.
func (n *Node) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &n.Data)
}

// MarshalJSON encodes n.Data.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Data)
}

// NodeAt returns a Node for path along with the Root it belongs to. The node
// has a key unless path is the database root.
func NodeAt(db *rtdb.DB, path string) (*Node, error) {
	ref := db.Ref(path)
	if err := ref.Err(); err != nil {
		return nil, err
	}
	root := NewRoot(db, map[Kind]string{NodeKind: ref.Parent().Path()})
	n := &Node{}
	n.SetKey(ref.Key())
	n.SetParent(root)
	return n, nil
}
