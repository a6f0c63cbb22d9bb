package store

import (
	"crypto/sha1"
	"encoding/hex"
)

// RefUpdate is an immutable task record describing one unit of
// replication work: a single ref, on a single project, bound for a
// single (remote, uri) destination.
type RefUpdate struct {
	Project string `json:"project"`
	Ref     string `json:"ref"`
	URI     string `json:"uri"`
	Remote  string `json:"remote"`
}

// Key computes the task's canonical identity: the SHA-1 hex digest of
// its four fields, NUL-separated so that e.g. project="ab", ref="c"
// cannot collide with project="a", ref="bc".
func (u RefUpdate) Key() string {
	h := sha1.New()
	h.Write([]byte(u.Project))
	h.Write([]byte{0})
	h.Write([]byte(u.Ref))
	h.Write([]byte{0})
	h.Write([]byte(u.URI))
	h.Write([]byte{0})
	h.Write([]byte(u.Remote))
	return hex.EncodeToString(h.Sum(nil))
}
