// Package trie implements a persistent, cryptographically authenticated
// key-value map: a Modified Merkle-Patricia Trie over an arbitrary KV
// store, hashed with a pluggable hash function (Keccak-256 by default).
package trie

import (
	"bytes"
	"sync"

	"github.com/mpttrie/mpt/crypto"
	"github.com/mpttrie/mpt/log"
	"github.com/mpttrie/mpt/metrics"
)

// HashFunc hashes a node's canonical serialization. The zero Config uses
// Keccak256.
type HashFunc func([]byte) []byte

// Config holds the construction options for New.
type Config struct {
	// Store is the backing KV. Required.
	Store KV
	// Root is the initial root hash; nil/empty means "start from an empty
	// trie" (unless PersistRoot is set and the store already has one).
	Root []byte
	// HashFn hashes node serializations; defaults to Keccak256.
	HashFn HashFunc
	// HashLen is the digest length HashFn produces; defaults to 32.
	// Serializations shorter than this are inlined in their parent.
	HashLen int
	// HashKeys enables "secure" mode: logical keys are hashed with HashFn
	// before being converted to a nibble path.
	HashKeys bool
	// DeleteOnWrite issues a delete op for the previous root node's hash
	// when a Put replaces it. Other nodes replaced by a Put, and nodes
	// replaced by a Delete, are not deleted and stay in the store.
	DeleteOnWrite bool
	// PersistRoot writes the current root hash to the store (under
	// RootDBKey, via RootStore) after every mutation, and is read back by
	// New on construction when Root is not explicitly given. Requires
	// Store to implement RootStore.
	PersistRoot bool
	// Logger receives diagnostic output; defaults to the package-level
	// default logger's "trie" module.
	Logger *log.Logger
	// Metrics receives Put/Delete/Get counters and a node-write histogram;
	// defaults to metrics.DefaultRegistry.
	Metrics *metrics.Registry
}

// Trie is a Modified Merkle-Patricia Trie. Its logical state is fully
// determined by (root, store): Trie itself caches nothing beyond the
// current root hash, so two Tries sharing a store and root behave
// identically.
type Trie struct {
	mu sync.Mutex

	store         KV
	hashFn        HashFunc
	hashLen       int
	hashKeys      bool
	deleteOnWrite bool
	persistRoot   bool

	emptyRoot []byte
	root      []byte // current root hash; equals emptyRoot for an empty trie

	log     *log.Logger
	metrics *metrics.Registry
}

// New constructs a Trie per cfg.
func New(cfg Config) (*Trie, error) {
	if cfg.Store == nil {
		panic("trie: Config.Store is required")
	}
	hashFn := cfg.HashFn
	if hashFn == nil {
		hashFn = func(b []byte) []byte { return crypto.Keccak256(b) }
	}
	hashLen := cfg.HashLen
	if hashLen == 0 {
		hashLen = 32
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().Module("trie")
	}
	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.DefaultRegistry
	}

	t := &Trie{
		store:         cfg.Store,
		hashFn:        hashFn,
		hashLen:       hashLen,
		hashKeys:      cfg.HashKeys,
		deleteOnWrite: cfg.DeleteOnWrite,
		persistRoot:   cfg.PersistRoot,
		emptyRoot:     hashFn([]byte{0x80}),
		log:           logger,
		metrics:       reg,
	}

	if cfg.PersistRoot {
		if _, ok := cfg.Store.(RootStore); !ok {
			return nil, ErrNoRootStore
		}
	}

	switch {
	case len(cfg.Root) > 0:
		if len(cfg.Root) != hashLen {
			return nil, ErrInvalidRoot
		}
		t.root = append([]byte(nil), cfg.Root...)
	case cfg.PersistRoot:
		rs := cfg.Store.(RootStore)
		if saved, ok, err := rs.ReadRoot(); err != nil {
			return nil, err
		} else if ok {
			t.root = saved
		} else {
			t.root = append([]byte(nil), t.emptyRoot...)
		}
	default:
		t.root = append([]byte(nil), t.emptyRoot...)
	}
	return t, nil
}

// Root returns the current root hash.
func (t *Trie) Root() []byte {
	return append([]byte(nil), t.root...)
}

// Hash is an alias for Root, matching the common Ethereum-derived naming.
func (t *Trie) Hash() []byte {
	return t.Root()
}

// IsEmpty reports whether the trie currently maps no keys.
func (t *Trie) IsEmpty() bool {
	return bytes.Equal(t.root, t.emptyRoot)
}

func (t *Trie) keyToPath(key []byte) []byte {
	if t.hashKeys {
		key = t.hashFn(key)
	}
	return keybytesToHex(key)
}

// Get returns the value stored under key, or ErrNotFound.
func (t *Trie) Get(key []byte) ([]byte, error) {
	t.metrics.Counter(metrics.MetricGets).Inc()
	path := t.keyToPath(key)
	path = path[:len(path)-1] // strip the terminator keybytesToHex appends

	if bytes.Equal(t.root, t.emptyRoot) {
		return nil, ErrNotFound
	}
	matched, _, _, err := t.findPath(path)
	if err != nil {
		return nil, err
	}
	switch n := matched.(type) {
	case *LeafNode:
		return append([]byte(nil), n.Value...), nil
	case *BranchNode:
		if n.Value == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), n.Value...), nil
	default:
		return nil, ErrNotFound
	}
}

// stackEntry records one ancestor visited by findPath: the node itself,
// the ref that pointed to it, and, for a
// BranchNode ancestor, which child index the path continued into.
type stackEntry struct {
	node   Node
	oldRef Node
	nibble int // -1 unless node is a *BranchNode and we descended through it
}

// findPath walks from the root along path, resolving hashNode refs
// through the store as it goes. It returns the node matched at the end of
// path (a *LeafNode or a *BranchNode with a Value), or nil if path is not
// present, along with the ancestor stack (outermost first) needed to
// rebuild the trie after a mutation.
func (t *Trie) findPath(path []byte) (matched Node, remaining []byte, stack []stackEntry, err error) {
	var cur Node = hashNode(t.root)
	rem := path

	for {
		n, rerr := resolveRef(t.store, cur, path[:len(path)-len(rem)])
		if rerr != nil {
			return nil, rem, stack, rerr
		}
		if n == nil {
			return nil, rem, stack, nil
		}
		switch nd := n.(type) {
		case *LeafNode:
			stack = append(stack, stackEntry{node: nd, oldRef: cur, nibble: -1})
			if bytes.Equal(nd.Key, rem) {
				return nd, nil, stack, nil
			}
			return nil, rem, stack, nil
		case *ExtensionNode:
			stack = append(stack, stackEntry{node: nd, oldRef: cur, nibble: -1})
			if len(rem) >= len(nd.Key) && bytes.Equal(nd.Key, rem[:len(nd.Key)]) {
				rem = rem[len(nd.Key):]
				cur = nd.Child
				continue
			}
			return nil, rem, stack, nil
		case *BranchNode:
			if len(rem) == 0 {
				stack = append(stack, stackEntry{node: nd, oldRef: cur, nibble: -1})
				return nd, nil, stack, nil
			}
			idx := int(rem[0])
			stack = append(stack, stackEntry{node: nd, oldRef: cur, nibble: idx})
			child := nd.Children[idx]
			if isEmptyRef(child) {
				return nil, rem, stack, nil
			}
			cur = child
			rem = rem[1:]
			continue
		default:
			return nil, rem, stack, nil
		}
	}
}

// Put inserts or replaces the value for key. Putting an empty value is
// equivalent to Delete, matching the trie's canonical serialization (an
// empty value cannot be distinguished from absence).
func (t *Trie) Put(key, value []byte) error {
	if len(value) == 0 {
		return t.Delete(key)
	}
	t.metrics.Counter(metrics.MetricPuts).Inc()
	t.mu.Lock()
	defer t.mu.Unlock()

	path := t.keyToPath(key)
	path = path[:len(path)-1]
	var ops []Op

	if bytes.Equal(t.root, t.emptyRoot) {
		leaf := &LeafNode{Key: append([]byte(nil), path...), Value: append([]byte(nil), value...)}
		ref, err := t.formatNode(leaf, true, nil, &ops)
		if err != nil {
			return err
		}
		return t.installRoot(ref, ops)
	}

	matched, rem, stack, err := t.findPath(path)
	if err != nil {
		return err
	}

	var terminal Node
	if matched != nil {
		// Exact existing node matched: replace its value in place.
		switch m := matched.(type) {
		case *LeafNode:
			terminal = &LeafNode{Key: m.Key, Value: append([]byte(nil), value...)}
			stack = stack[:len(stack)-1]
		case *BranchNode:
			nb := *m
			nb.Value = append([]byte(nil), value...)
			terminal = &nb
			stack = stack[:len(stack)-1]
		}
	} else {
		terminal, stack, err = t.insertAt(rem, value, stack)
		if err != nil {
			return err
		}
	}

	rootRef, err := t.saveStack(stack, terminal, &ops)
	if err != nil {
		return err
	}
	if err := t.installRoot(rootRef, ops); err != nil {
		t.log.Error("put failed", "key", key, "err", err)
		return err
	}
	return nil
}

// insertAt builds the replacement for the innermost stack entry (the node
// where the path diverged, or ran out) given the remaining unmatched
// nibbles and the new value. It returns the new terminal node and the
// (possibly shortened) stack leading to it.
func (t *Trie) insertAt(rem []byte, value []byte, stack []stackEntry) (Node, []stackEntry, error) {
	if len(stack) == 0 {
		leaf := &LeafNode{Key: append([]byte(nil), rem...), Value: append([]byte(nil), value...)}
		return leaf, stack, nil
	}
	top := stack[len(stack)-1]
	switch n := top.node.(type) {
	case *LeafNode:
		return t.splitLeafOrExtKey(n.Key, rem, n, nil, value, stack[:len(stack)-1])
	case *ExtensionNode:
		return t.splitLeafOrExtKey(n.Key, rem, nil, n, value, stack[:len(stack)-1])
	case *BranchNode:
		// rem is non-empty here (an empty rem at a branch means "matched",
		// handled by the exact-match path in Put) and the child at
		// rem[0] was empty (otherwise findPath would have descended).
		leaf := &LeafNode{Key: append([]byte(nil), rem[1:]...), Value: append([]byte(nil), value...)}
		nb := *n
		nb.Children[rem[0]] = leaf
		return &nb, stack[:len(stack)-1], nil
	default:
		stackUnderflow(top.node)
		return nil, nil, nil
	}
}

// splitLeafOrExtKey implements the divergent-prefix split shared by
// inserting under a LeafNode or an ExtensionNode: find the longest common
// nibble prefix between the existing node's key and the new remaining
// path, and build a branch (wrapped in an extension if that prefix is
// non-empty) with the existing content and the new value each routed to
// their own branch slot (or straight into the branch's Value, if one of
// the two keys ends exactly at the split point). Exactly one of leaf/ext
// is non-nil, identifying which kind of node is being split; an
// ExtensionNode's key is never fully consumed here (findPath already
// descends through a matching extension), so existingTail below is only
// ever empty in the LeafNode case.
func (t *Trie) splitLeafOrExtKey(existingKey, rem []byte, leaf *LeafNode, ext *ExtensionNode, value []byte, rest []stackEntry) (Node, []stackEntry, error) {
	lp := prefixLen(existingKey, rem)
	branch := NewBranchNode()

	existingTail := existingKey[lp:]
	remTail := rem[lp:]

	if len(existingTail) == 0 {
		branch.Value = append([]byte(nil), leaf.Value...)
	} else if leaf != nil {
		branch.Children[existingTail[0]] = &LeafNode{
			Key:   append([]byte(nil), existingTail[1:]...),
			Value: append([]byte(nil), leaf.Value...),
		}
	} else {
		branch.Children[existingTail[0]] = wrapTail(existingTail[1:], ext.Child)
	}

	if len(remTail) == 0 {
		branch.Value = append([]byte(nil), value...)
	} else {
		branch.Children[remTail[0]] = &LeafNode{
			Key:   append([]byte(nil), remTail[1:]...),
			Value: append([]byte(nil), value...),
		}
	}

	var result Node = branch
	if lp > 0 {
		result = &ExtensionNode{Key: append([]byte(nil), existingKey[:lp]...), Child: branch}
	}
	return result, rest, nil
}

// wrapTail re-attaches a key tail to a child ref: if tail is empty the
// child is used directly, otherwise an ExtensionNode carries the tail.
func wrapTail(tail []byte, child Node) Node {
	if len(tail) == 0 {
		return child
	}
	return &ExtensionNode{Key: append([]byte(nil), tail...), Child: child}
}

// Delete removes key, if present. Deleting an absent key is a no-op and
// leaves the root hash unchanged.
func (t *Trie) Delete(key []byte) error {
	t.metrics.Counter(metrics.MetricDeletes).Inc()
	t.mu.Lock()
	defer t.mu.Unlock()

	if bytes.Equal(t.root, t.emptyRoot) {
		return nil
	}

	path := t.keyToPath(key)
	path = path[:len(path)-1]

	matched, _, stack, err := t.findPath(path)
	if err != nil {
		return err
	}
	if matched == nil {
		return nil
	}

	var ops []Op
	stack = stack[:len(stack)-1] // drop the matched node itself; it is removed or rebuilt below

	// A matched Leaf is removed outright; a matched Branch only loses its
	// value, and collapses if that leaves it with a single child.
	var start Node
	if b, ok := matched.(*BranchNode); ok {
		nb := *b
		nb.Value = nil
		if start, _, err = t.collapseBranch(&nb); err != nil {
			return err
		}
	}

	rootRef, shrunk, err := t.collapseAfterDelete(stack, start, &ops)
	if err != nil {
		return err
	}
	if shrunk {
		return t.installRoot(rootRef, ops)
	}
	final, err := t.formatNode(rootRef, true, nil, &ops)
	if err != nil {
		return err
	}
	return t.installRoot(final, ops)
}

// collapseAfterDelete rebuilds ancestors bottom-up after a leaf/branch
// value removal, applying the Branch/Extension merge rules: a branch left
// with exactly one remaining child (and no value) collapses into that
// child, see collapseBranch; an Extension whose child collapsed into
// another Extension concatenates their keys into one, and an Extension
// whose child collapsed into a Leaf folds into a single Leaf. start is the
// replacement for the node below the stack's innermost entry (nil when
// that node was removed outright). Returns the
// final node to install as root and whether the tree actually became
// empty (signalled as rootRef == nil, shrunk == true) so callers skip the
// force-hash step.
func (t *Trie) collapseAfterDelete(stack []stackEntry, start Node, ops *[]Op) (Node, bool, error) {
	cur := start
	haveCur := start != nil

	for i := len(stack) - 1; i >= 0; i-- {
		entry := stack[i]
		switch n := entry.node.(type) {
		case *BranchNode:
			nb := *n
			if haveCur {
				ref, err := t.formatNode(cur, false, nil, ops)
				if err != nil {
					return nil, false, err
				}
				nb.Children[entry.nibble] = ref
			} else {
				nb.Children[entry.nibble] = nil
			}
			collapsed, isLeafLike, err := t.collapseBranch(&nb)
			if err != nil {
				return nil, false, err
			}
			cur = collapsed
			haveCur = true
			if isLeafLike {
				continue
			}
		case *ExtensionNode:
			ne := *n
			if !haveCur {
				// Extension's only child vanished entirely: the extension
				// itself vanishes too, propagate emptiness upward.
				haveCur = false
				continue
			}
			switch child := cur.(type) {
			case *ExtensionNode:
				ne.Key = append(append([]byte(nil), ne.Key...), child.Key...)
				ne.Child = child.Child
				cur = &ne
			case *LeafNode:
				// An Extension whose child collapsed into a Leaf folds into
				// a single Leaf: the extension itself carries no value.
				cur = &LeafNode{Key: append(append([]byte(nil), ne.Key...), child.Key...), Value: child.Value}
			default:
				ne.Child = cur
				cur = &ne
			}
			haveCur = true
		default:
			stackUnderflow(entry.node)
		}
	}
	if !haveCur {
		return nil, true, nil
	}
	return cur, false, nil
}

// collapseBranch applies the branch-collapse rule: if nb now has a value
// and zero children, it degenerates to a LeafNode with an empty key. If it
// has exactly one child and no value, that child is pulled up: the child is
// resolved through the store to see what it actually is, its index nibble
// is prepended to its key if it is a Leaf or Extension (folding it directly
// into the parent's slot rather than nesting it under a fresh Extension),
// and only a Branch child is wrapped as Extension([i], child). Otherwise nb
// stands as-is. The second return value is true whenever the error is nil,
// including when nb stands as-is; collapseAfterDelete continues bottom-up
// the same way whatever its value.
func (t *Trie) collapseBranch(nb *BranchNode) (Node, bool, error) {
	count := 0
	idx := -1
	for i := 0; i < 16; i++ {
		if !isEmptyRef(nb.Children[i]) {
			count++
			idx = i
		}
	}
	if count == 0 {
		if nb.Value != nil {
			return &LeafNode{Key: nil, Value: nb.Value}, true, nil
		}
		return nil, true, nil
	}
	if count == 1 && nb.Value == nil {
		ref := nb.Children[idx]
		child, err := resolveRef(t.store, ref, nil)
		if err != nil {
			return nil, false, err
		}
		switch c := child.(type) {
		case *LeafNode:
			return &LeafNode{Key: append([]byte{byte(idx)}, c.Key...), Value: c.Value}, true, nil
		case *ExtensionNode:
			return &ExtensionNode{Key: append([]byte{byte(idx)}, c.Key...), Child: c.Child}, true, nil
		default:
			return &ExtensionNode{Key: []byte{byte(idx)}, Child: ref}, true, nil
		}
	}
	return nb, true, nil
}

// formatNode decides, for a node about to become some ancestor's child
// (or the new root, when force is true), whether it is persisted by hash
// or kept inline: its canonical serialization is computed; if that
// serialization is hashLen bytes or longer, or force is set, the bytes
// are queued as a store write keyed by their hash and a hashNode ref is
// returned; otherwise the concrete node itself is the ref (inline).
// oldRef, if non-nil and deleteOnWrite is enabled, causes a delete op to
// be queued for any hash it carries that the new ref does not reproduce.
func (t *Trie) formatNode(n Node, force bool, oldRef Node, ops *[]Op) (Node, error) {
	if n == nil {
		return nil, nil
	}
	if h, ok := n.(hashNode); ok {
		return h, nil
	}
	enc, err := serialize(n)
	if err != nil {
		return nil, err
	}
	if len(enc) >= t.hashLen || force {
		h := t.hashFn(enc)
		t.metrics.Histogram(metrics.MetricNodeBytes).Observe(float64(len(enc)))
		*ops = append(*ops, Op{Kind: OpPut, Key: h, Value: enc})
		if t.deleteOnWrite {
			if old, ok := oldRef.(hashNode); ok && !bytes.Equal(old, h) {
				*ops = append(*ops, Op{Kind: OpDelete, Key: append([]byte(nil), old...)})
			}
		}
		return hashNode(h), nil
	}
	if t.deleteOnWrite {
		if old, ok := oldRef.(hashNode); ok {
			*ops = append(*ops, Op{Kind: OpDelete, Key: append([]byte(nil), old...)})
		}
	}
	return n, nil
}

// saveStack rehashes the mutation's ancestor stack bottom-up: the
// terminal replacement node is formatted (inlined or hashed) and patched
// into its parent's child slot, whose own new form is then formatted and
// patched into its parent, and so on until the stack is exhausted; the
// final result is force-hashed to become the new root.
func (t *Trie) saveStack(stack []stackEntry, terminal Node, ops *[]Op) (Node, error) {
	cur := terminal
	for i := len(stack) - 1; i >= 0; i-- {
		entry := stack[i]
		ref, err := t.formatNode(cur, false, nil, ops)
		if err != nil {
			return nil, err
		}
		switch n := entry.node.(type) {
		case *BranchNode:
			nb := *n
			nb.Children[entry.nibble] = ref
			cur = &nb
		case *ExtensionNode:
			ne := *n
			ne.Child = ref
			cur = &ne
		default:
			stackUnderflow(entry.node)
		}
	}
	return t.formatNode(cur, true, hashNode(t.root), ops)
}

// installRoot applies the accumulated ops to the store and, if non-nil,
// sets rootRef as the trie's new root hash. A nil rootRef (the trie
// became empty) installs emptyRoot instead. persistRoot, if enabled,
// writes the new root to the store's reserved entry in the same call.
func (t *Trie) installRoot(rootRef Node, ops []Op) error {
	if len(ops) > 0 {
		if err := t.store.Batch(ops); err != nil {
			return err
		}
	}
	if rootRef == nil {
		t.root = append([]byte(nil), t.emptyRoot...)
	} else if h, ok := rootRef.(hashNode); ok {
		t.root = append([]byte(nil), h...)
	} else {
		// Should not happen: formatNode(force=true) always returns a
		// hashNode. Guard defensively rather than silently corrupt root.
		stackUnderflow(rootRef)
	}
	if t.persistRoot {
		rs := t.store.(RootStore)
		if err := rs.PersistRoot(t.root); err != nil {
			return err
		}
	}
	return nil
}

// CheckRoot walks the entire trie from its root, verifying every node is
// reachable in the store. If swallow is true, a MissingNodeError for any
// subtree makes CheckRoot report false instead of returning an error.
func (t *Trie) CheckRoot(swallow bool) (bool, error) {
	ok := true
	err := Walk(t.store, hashNode(t.root), false, func(ref Node, n Node, path []byte, ctl *WalkController) error {
		ctl.AllChildren(n, path)
		return nil
	})
	if err != nil {
		if swallow && IsMissingNode(err) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
