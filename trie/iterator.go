package trie

import "bytes"

// Iterator produces a lazy, ordered sequence of (fullKey, value) pairs by
// walking a trie depth-first in nibble-ascending order: a BranchNode's own
// value (if any) is yielded before its children, children are visited in
// nibble order, and a LeafNode yields once. It resolves hashNode children
// through the store on demand and caches each frame's decoded node so a
// BranchNode with many children is only fetched and decoded once across
// the whole traversal. An Iterator is single-pass; create a new one to
// iterate again.
type Iterator struct {
	store KV
	stack []iterFrame

	key   []byte
	value []byte
	err   error
	done  bool
}

type iterFrame struct {
	ref  Node
	node Node
	path []byte

	child        int
	valueEmitted bool
}

// Iterator returns a fresh Iterator over t's current root. Mutating t after
// creating an Iterator does not affect an iterator already in progress,
// since Iterator holds no reference to t itself, only the ref it started
// from and the shared store.
func (t *Trie) Iterator() *Iterator {
	it := &Iterator{store: t.store}
	if !bytes.Equal(t.root, t.emptyRoot) {
		it.stack = []iterFrame{{ref: hashNode(t.root)}}
	}
	return it
}

// Next advances the iterator, reporting whether a pair was produced; Key
// and Value are only valid after a call that returned true. Iteration
// stops (Next returns false) at the end of the trie or on the first
// error, which Err then reports.
func (it *Iterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.node == nil {
			n, err := resolveRef(it.store, top.ref, top.path)
			if err != nil {
				it.err = err
				return false
			}
			if n == nil {
				it.stack = it.stack[:len(it.stack)-1]
				continue
			}
			top.node = n
		}
		switch nd := top.node.(type) {
		case *LeafNode:
			full := append(append([]byte(nil), top.path...), nd.Key...)
			it.key = hexToKeybytes(full)
			it.value = append([]byte(nil), nd.Value...)
			it.stack = it.stack[:len(it.stack)-1]
			return true
		case *ExtensionNode:
			newPath := append(append([]byte(nil), top.path...), nd.Key...)
			it.stack[len(it.stack)-1] = iterFrame{ref: nd.Child, path: newPath}
		case *BranchNode:
			if !top.valueEmitted && nd.Value != nil {
				top.valueEmitted = true
				it.key = hexToKeybytes(top.path)
				it.value = append([]byte(nil), nd.Value...)
				return true
			}
			advanced := false
			for top.child < 16 {
				idx := top.child
				top.child++
				if !isEmptyRef(nd.Children[idx]) {
					it.stack = append(it.stack, iterFrame{ref: nd.Children[idx], path: appendNibble(top.path, byte(idx))})
					advanced = true
					break
				}
			}
			if !advanced {
				it.stack = it.stack[:len(it.stack)-1]
			}
		default:
			stackUnderflow(top.node)
		}
	}
	it.done = true
	return false
}

// Key returns the full byte key of the pair produced by the most recent
// successful Next call.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the value of the pair produced by the most recent
// successful Next call.
func (it *Iterator) Value() []byte { return it.value }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }
