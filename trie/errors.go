package trie

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has no value in the trie.
var ErrNotFound = errors.New("trie: key not found")

// ErrInvalidRoot is returned by New when a configured root hash is
// malformed (wrong length for the trie's hash function). New does not look
// the root up in the store.
var ErrInvalidRoot = errors.New("trie: invalid root")

// ErrReservedKey is returned by a KV's Put/Delete/Batch when a caller
// addresses the reserved RootDBKey directly.
var ErrReservedKey = errors.New("trie: key is reserved for root persistence")

// ErrInvalidBatchOp is returned when a batch contains a put with an empty
// value; use OpDelete to remove a key instead.
var ErrInvalidBatchOp = errors.New("trie: batch put with empty value")

// ErrInvalidProof is returned by VerifyProof/VerifyRangeProof when a proof
// fails to validate against the claimed root.
var ErrInvalidProof = errors.New("trie: invalid proof")

// ErrNoRootStore is returned by New when persistRoot is requested but the
// configured store does not implement RootStore.
var ErrNoRootStore = errors.New("trie: store does not support persistRoot")

// MissingNodeError is returned when a node referenced by hash cannot be
// found in the store, or returned data for it is corrupt. It is
// recoverable: callers such as Walk (with swallowMissing) or CheckRoot may
// treat it as "subtree unreachable" rather than propagate it.
type MissingNodeError struct {
	Hash []byte
	Path []byte
}

func (e *MissingNodeError) Error() string {
	return fmt.Sprintf("trie: missing node %x at path %x", e.Hash, e.Path)
}

// IsMissingNode reports whether err is (or wraps) a *MissingNodeError.
func IsMissingNode(err error) bool {
	var mn *MissingNodeError
	return errors.As(err, &mn)
}

// stackUnderflow signals an internal invariant breach in save_stack: an
// ancestor stack entry was neither a BranchNode nor an ExtensionNode. This
// can only happen from a bug in the trie engine itself, not from caller
// input, so it panics rather than returning an error.
func stackUnderflow(n Node) {
	panic(fmt.Sprintf("trie: stack underflow, unexpected ancestor node type %T", n))
}
