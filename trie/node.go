package trie

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Node is the sealed tagged union of the four node shapes a trie position
// can hold: LeafNode, ExtensionNode, BranchNode (all inline/concrete), and
// hashNode (a reference to a node persisted elsewhere, keyed by its hash).
// A nil Node is the empty child.
type Node interface {
	noder()
}

// LeafNode terminates a path; Key is the nibble suffix remaining from this
// node to the key's end (without a terminator marker), Value is the stored
// bytes.
type LeafNode struct {
	Key   []byte
	Value []byte
}

// ExtensionNode shares a nibble prefix between this node and its single
// child. Key is always non-empty; an empty shared prefix collapses directly
// to the child.
type ExtensionNode struct {
	Key   []byte
	Child Node
}

// BranchNode fans out on the next nibble. Value holds a value stored at
// this exact path (if any); it is not one of the 16 children.
type BranchNode struct {
	Children [16]Node
	Value    []byte
}

// hashNode is a reference to a node whose canonical serialization is
// hashLen bytes or more; the bytes are the node's hash, and the node body
// itself lives in the store under that hash.
type hashNode []byte

func (*LeafNode) noder()      {}
func (*ExtensionNode) noder() {}
func (*BranchNode) noder()    {}
func (hashNode) noder()       {}

// NewBranchNode returns an empty branch with no children and no value.
func NewBranchNode() *BranchNode {
	return &BranchNode{}
}

// isEmptyRef reports whether ref represents the empty child: either a
// literal nil or a zero-length hashNode.
func isEmptyRef(ref Node) bool {
	if ref == nil {
		return true
	}
	if h, ok := ref.(hashNode); ok {
		return len(h) == 0
	}
	return false
}

// terminatorByte marks the end of a leaf's nibble path. It is one past the
// range of a real nibble (0x0-0xf), so it can never be confused with one.
const terminatorByte = 16

// hasTerm reports whether path ends in the leaf terminator.
func hasTerm(path []byte) bool {
	return len(path) > 0 && path[len(path)-1] == terminatorByte
}

// keybytesToHex expands a raw byte key into its nibble path (high nibble
// first), appending the leaf terminator.
func keybytesToHex(key []byte) []byte {
	path := make([]byte, len(key)*2+1)
	for i, b := range key {
		path[2*i] = b >> 4
		path[2*i+1] = b & 0x0f
	}
	path[len(path)-1] = terminatorByte
	return path
}

// hexToKeybytes reverses keybytesToHex: a trailing terminator, if present,
// is dropped, and the remaining nibbles (necessarily an even count) are
// repacked into bytes.
func hexToKeybytes(path []byte) []byte {
	if hasTerm(path) {
		path = path[:len(path)-1]
	}
	if len(path)%2 != 0 {
		panic("trie: hexToKeybytes called with an odd-length nibble path")
	}
	key := make([]byte, len(path)/2)
	decodeNibbles(path, key)
	return key
}

// decodeNibbles packs consecutive pairs of nibbles from nibbles into out;
// len(out) must equal len(nibbles)/2.
func decodeNibbles(nibbles, out []byte) {
	for i := range out {
		out[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}
}

// prefixLen returns how many leading nibbles a and b have in common.
func prefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// hexToCompact packs a nibble path into the wire form serialize embeds in
// a Leaf or Extension's key slot: the high nibble of the first byte
// records whether path carried the leaf terminator (bit 5) and whether the
// remaining nibble count is odd (bit 4); an odd count additionally tucks
// its leading nibble into the low bits of that first byte, so the rest of
// path always packs into whole bytes.
func hexToCompact(path []byte) []byte {
	var flags byte
	if hasTerm(path) {
		flags |= 1 << 5
		path = path[:len(path)-1]
	}
	out := make([]byte, len(path)/2+1)
	if len(path)%2 == 1 {
		flags |= 1<<4 | path[0]
		path = path[1:]
	}
	out[0] = flags
	decodeNibbles(path, out[1:])
	return out
}

// compactToHex is hexToCompact's inverse: it unpacks compact back into a
// nibble path, reattaching the leaf terminator when the flags byte marks
// it as a leaf's encoding.
func compactToHex(compact []byte) []byte {
	if len(compact) == 0 {
		return compact
	}
	expanded := keybytesToHex(compact)
	expanded = expanded[:len(expanded)-1] // drop keybytesToHex's own terminator
	flags := expanded[0]
	skip := 2 - flags&1
	if flags&2 != 0 {
		path := make([]byte, len(expanded)-int(skip)+1)
		copy(path, expanded[skip:])
		path[len(path)-1] = terminatorByte
		return path
	}
	return expanded[skip:]
}

// serialize produces the canonical RLP serialization of n, per the data
// model's canonical serialization rule: a Leaf/Extension encodes as a
// 2-element list [hexPrefix(key), valueOrChildRef]; a Branch encodes as a
// 17-element list of the 16 child refs followed by the value (empty string
// if absent). Child refs are embedded as raw RLP (rlp.RawValue) when the
// child is held inline, or as a plain byte string when it is a hashNode.
func serialize(n Node) ([]byte, error) {
	switch v := n.(type) {
	case *LeafNode:
		key := hexToCompact(append(append([]byte{}, v.Key...), terminatorByte))
		return rlp.EncodeToBytes([]interface{}{key, v.Value})
	case *ExtensionNode:
		key := hexToCompact(v.Key)
		childItem, err := refItem(v.Child)
		if err != nil {
			return nil, err
		}
		return rlp.EncodeToBytes([]interface{}{key, childItem})
	case *BranchNode:
		items := make([]interface{}, 17)
		for i := 0; i < 16; i++ {
			item, err := refItem(v.Children[i])
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		items[16] = v.Value
		return rlp.EncodeToBytes(items)
	default:
		return nil, fmt.Errorf("trie: cannot serialize node of type %T", n)
	}
}

// refItem converts a child ref into the value rlp.EncodeToBytes should embed
// for it: a byte string for hashNode/nil, or the raw already-encoded RLP of
// an inline concrete node (so it is embedded as a sublist, not double
// string-encoded).
func refItem(ref Node) (interface{}, error) {
	switch v := ref.(type) {
	case nil:
		return []byte(nil), nil
	case hashNode:
		return []byte(v), nil
	default:
		enc, err := serialize(v)
		if err != nil {
			return nil, err
		}
		return rlp.RawValue(enc), nil
	}
}

// decodeNode parses the canonical RLP serialization of a node. The result
// carries no hash of its own (the 3-variant model keeps no self hash on
// concrete nodes).
func decodeNode(data []byte) (Node, error) {
	kind, content, _, err := rlp.Split(data)
	if err != nil {
		return nil, fmt.Errorf("trie: decode node: %w", err)
	}
	if kind != rlp.List {
		return nil, fmt.Errorf("trie: decode node: expected list, got %v", kind)
	}
	items, err := splitListItems(content)
	if err != nil {
		return nil, fmt.Errorf("trie: decode node: %w", err)
	}
	switch len(items) {
	case 2:
		return decodeShort(items[0], items[1])
	case 17:
		return decodeFull(items)
	default:
		return nil, fmt.Errorf("trie: decode node: invalid number of list elements %d", len(items))
	}
}

// splitListItems splits the concatenated raw RLP items inside a list's
// content into their individual raw encodings.
func splitListItems(content []byte) ([]rlp.RawValue, error) {
	var items []rlp.RawValue
	for len(content) > 0 {
		_, itemContent, rest, err := rlp.Split(content)
		if err != nil {
			return nil, err
		}
		item := content[:len(content)-len(rest)]
		items = append(items, rlp.RawValue(item))
		_ = itemContent
		content = rest
	}
	return items, nil
}

func decodeShort(keyItem, valItem rlp.RawValue) (Node, error) {
	var compact []byte
	if err := rlp.DecodeBytes(keyItem, &compact); err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	hex := compactToHex(compact)
	if hasTerm(hex) {
		var value []byte
		if err := rlp.DecodeBytes(valItem, &value); err != nil {
			return nil, fmt.Errorf("invalid leaf value: %w", err)
		}
		return &LeafNode{Key: hex[:len(hex)-1], Value: value}, nil
	}
	child, err := decodeRef(valItem)
	if err != nil {
		return nil, fmt.Errorf("invalid extension child: %w", err)
	}
	return &ExtensionNode{Key: hex, Child: child}, nil
}

func decodeFull(items []rlp.RawValue) (Node, error) {
	b := NewBranchNode()
	for i := 0; i < 16; i++ {
		child, err := decodeRef(items[i])
		if err != nil {
			return nil, fmt.Errorf("invalid branch child %d: %w", i, err)
		}
		b.Children[i] = child
	}
	var value []byte
	if err := rlp.DecodeBytes(items[16], &value); err != nil {
		return nil, fmt.Errorf("invalid branch value: %w", err)
	}
	if len(value) > 0 {
		b.Value = value
	}
	return b, nil
}

// decodeRef interprets one RLP item found in a parent's child slot: a list
// means an inline node (decoded recursively), any non-empty string means a
// hashNode (its length is not checked here), and an empty string means no
// child.
func decodeRef(item rlp.RawValue) (Node, error) {
	kind, _, _, err := rlp.Split(item)
	if err != nil {
		return nil, err
	}
	if kind == rlp.List {
		return decodeNode(item)
	}
	var raw []byte
	if err := rlp.DecodeBytes(item, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return hashNode(raw), nil
}
