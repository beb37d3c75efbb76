package trie

import (
	"bytes"

	"github.com/mpttrie/mpt/crypto"
)

func defaultHashFn(fn HashFunc) HashFunc {
	if fn != nil {
		return fn
	}
	return func(b []byte) []byte { return crypto.Keccak256(b) }
}

// CreateProof returns the ordered, root-first list of serialized node
// bytes along the path to key: the trie's own ancestor stack from
// find_path, each entry canonically re-serialized. The list authenticates
// either the value stored at key, or its absence, under the trie's
// current root.
func (t *Trie) CreateProof(key []byte) ([][]byte, error) {
	if bytes.Equal(t.root, t.emptyRoot) {
		return nil, nil
	}
	path := t.keyToPath(key)
	path = path[:len(path)-1]

	_, _, stack, err := t.findPath(path)
	if err != nil {
		return nil, err
	}
	proof := make([][]byte, len(stack))
	for i, entry := range stack {
		enc, err := serialize(entry.node)
		if err != nil {
			return nil, err
		}
		proof[i] = enc
	}
	return proof, nil
}

// VerifyProof checks that proof authenticates the value (or absence) of
// key under rootHash: it replays the proof into a fresh ephemeral store
// keyed by hashFn(entry), builds a trie rooted directly at rootHash over
// that store, and performs a Get that must not hit any node missing from
// the proof. A nil hashFn defaults to Keccak256. A returned value
// authenticates presence; a nil value with a nil error authenticates
// absence. A node the proof does not supply (a MissingNodeError), or a
// root New rejects, yields ErrInvalidProof; other errors, such as a proof
// entry that fails to decode, are returned as they are.
func VerifyProof(rootHash, key []byte, proof [][]byte, hashFn HashFunc) ([]byte, error) {
	hashFn = defaultHashFn(hashFn)
	store := NewMemoryStore()
	for _, entry := range proof {
		if err := store.Put(hashFn(entry), append([]byte(nil), entry...)); err != nil {
			return nil, err
		}
	}
	tr, err := New(Config{Store: store, Root: rootHash, HashFn: hashFn})
	if err != nil {
		return nil, ErrInvalidProof
	}
	val, err := tr.Get(key)
	if err == nil {
		return val, nil
	}
	if err == ErrNotFound {
		return nil, nil
	}
	if IsMissingNode(err) {
		return nil, ErrInvalidProof
	}
	return nil, err
}

// VerifyRangeProof checks that proof authenticates the contiguous run of
// (keys[i], values[i]) pairs under rootHash. keys must be strictly
// ascending and len(keys) == len(values). If proof is nil, the claimed
// range is the entire trie: a trie built from keys/values alone must hash
// to rootHash. Otherwise proof seeds a partial trie whose root, after
// overlaying put(keys[i], values[i]) for every pair, must equal rootHash;
// when firstKey/lastKey are given they additionally bracket the range and
// the proof must authenticate that the seeded trie holds no other key in
// [firstKey, keys[0]) or (keys[len-1], lastKey].
func VerifyRangeProof(rootHash, firstKey, lastKey []byte, keys, values [][]byte, proof [][]byte, hashFn HashFunc) error {
	if len(keys) != len(values) {
		return ErrInvalidProof
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			return ErrInvalidProof
		}
	}
	hashFn = defaultHashFn(hashFn)

	if proof == nil {
		tr, err := New(Config{Store: NewMemoryStore(), HashFn: hashFn})
		if err != nil {
			return err
		}
		for i := range keys {
			if err := tr.Put(keys[i], values[i]); err != nil {
				return ErrInvalidProof
			}
		}
		if !bytes.Equal(tr.Hash(), rootHash) {
			return ErrInvalidProof
		}
		return nil
	}

	store := NewMemoryStore()
	for _, entry := range proof {
		if err := store.Put(hashFn(entry), append([]byte(nil), entry...)); err != nil {
			return err
		}
	}
	tr, err := New(Config{Store: store, Root: rootHash, HashFn: hashFn})
	if err != nil {
		return ErrInvalidProof
	}
	for i := range keys {
		if err := tr.Put(keys[i], values[i]); err != nil {
			return ErrInvalidProof
		}
	}
	if !bytes.Equal(tr.Hash(), rootHash) {
		return ErrInvalidProof
	}

	if len(keys) == 0 {
		// No anchor key to bracket against; if both bounds were supplied this
		// is a claim that the whole [firstKey, lastKey] range is empty.
		if firstKey != nil && lastKey != nil {
			return checkRangeEmpty(tr, firstKey, lastKey, true, true)
		}
		return nil
	}
	if firstKey != nil {
		// [firstKey, keys[0]) must be empty.
		if err := checkRangeEmpty(tr, firstKey, keys[0], true, false); err != nil {
			return err
		}
	}
	if lastKey != nil {
		// (keys[len-1], lastKey] must be empty.
		if err := checkRangeEmpty(tr, keys[len(keys)-1], lastKey, false, true); err != nil {
			return err
		}
	}
	return nil
}

// checkRangeEmpty walks tr's full key space and fails if any key falls
// inside the bound (lo, hi), with inclusivity of each end controlled by
// loInclusive/hiInclusive, or if iteration hits a part of the trie the
// proof did not cover.
func checkRangeEmpty(tr *Trie, lo, hi []byte, loInclusive, hiInclusive bool) error {
	it := tr.Iterator()
	for it.Next() {
		k := it.Key()
		if loInclusive && bytes.Compare(k, lo) < 0 {
			continue
		}
		if !loInclusive && bytes.Compare(k, lo) <= 0 {
			continue
		}
		if hiInclusive && bytes.Compare(k, hi) > 0 {
			continue
		}
		if !hiInclusive && bytes.Compare(k, hi) >= 0 {
			continue
		}
		return ErrInvalidProof
	}
	if it.Err() != nil {
		if IsMissingNode(it.Err()) {
			return ErrInvalidProof
		}
		return it.Err()
	}
	return nil
}
