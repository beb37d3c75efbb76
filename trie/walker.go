package trie

// WalkFunc is invoked once per node Walk visits, with the ref that led to
// it, the resolved node itself, the nibble path consumed to reach it, and
// a WalkController the callback uses to decide which children (if any) to
// enqueue next.
type WalkFunc func(ref Node, n Node, path []byte, ctl *WalkController) error

// WalkController exposes the traversal's work-list to a WalkFunc. It
// decouples enqueue order from recursion: callbacks never call Walk's
// internals directly, only AllChildren/OnlyBranch.
type WalkController struct {
	pending []walkItem
}

type walkItem struct {
	ref  Node
	path []byte
}

// AllChildren enqueues every non-empty child of n for traversal, in
// nibble-descending push order so that popping the LIFO work-list visits
// them in nibble-ascending order (depth-first, left to right).
func (c *WalkController) AllChildren(n Node, path []byte) {
	switch v := n.(type) {
	case *ExtensionNode:
		c.push(v.Child, append(cloneNibbles(path), v.Key...))
	case *BranchNode:
		for i := 15; i >= 0; i-- {
			if !isEmptyRef(v.Children[i]) {
				c.push(v.Children[i], appendNibble(path, byte(i)))
			}
		}
	}
}

// OnlyBranch enqueues a single child of a BranchNode by index, skipping
// the rest, for callers that only need one subtree.
func (c *WalkController) OnlyBranch(b *BranchNode, path []byte, i int) {
	if !isEmptyRef(b.Children[i]) {
		c.push(b.Children[i], appendNibble(path, byte(i)))
	}
}

func (c *WalkController) push(ref Node, path []byte) {
	c.pending = append(c.pending, walkItem{ref: ref, path: path})
}

// Walk performs a depth-first traversal starting at root, resolving
// hashNode refs through store as needed. onFound is called for every
// resolved node; it must call AllChildren/OnlyBranch on ctl to continue
// into that node's children (returning without doing so prunes the
// subtree). If swallowMissing is true, a MissingNodeError for any subtree
// is swallowed and that subtree is simply skipped instead of aborting the
// whole walk.
func Walk(store KV, root Node, swallowMissing bool, onFound WalkFunc) error {
	if isEmptyRef(root) {
		return nil
	}
	ctl := &WalkController{pending: []walkItem{{ref: root, path: nil}}}
	for len(ctl.pending) > 0 {
		item := ctl.pending[len(ctl.pending)-1]
		ctl.pending = ctl.pending[:len(ctl.pending)-1]

		n, err := resolveRef(store, item.ref, item.path)
		if err != nil {
			if swallowMissing && IsMissingNode(err) {
				continue
			}
			return err
		}
		if err := onFound(item.ref, n, item.path, ctl); err != nil {
			return err
		}
	}
	return nil
}

// resolveRef turns a child ref into its concrete node: a hashNode is
// fetched from store and decoded, anything else (nil, or an already
// concrete inline node) is returned as-is.
func resolveRef(store KV, ref Node, path []byte) (Node, error) {
	h, ok := ref.(hashNode)
	if !ok {
		return ref, nil
	}
	data, err := store.Get(h)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, &MissingNodeError{Hash: append([]byte(nil), h...), Path: append([]byte(nil), path...)}
	}
	return decodeNode(data)
}

func cloneNibbles(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

func appendNibble(p []byte, nib byte) []byte {
	out := make([]byte, len(p)+1)
	copy(out, p)
	out[len(p)] = nib
	return out
}
