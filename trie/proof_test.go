package trie

import "testing"

func TestCreateAndVerifyProof_Presence(t *testing.T) {
	tr := newTestTrie(t)
	put(t, tr, "do", "verb")
	put(t, tr, "dog", "puppy")
	put(t, tr, "doge", "coin")

	proof, err := tr.CreateProof([]byte("dog"))
	if err != nil {
		t.Fatalf("CreateProof: %v", err)
	}
	val, err := VerifyProof(tr.Hash(), []byte("dog"), proof, nil)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if string(val) != "puppy" {
		t.Fatalf("VerifyProof value = %q, want %q", val, "puppy")
	}
}

func TestCreateAndVerifyProof_Absence(t *testing.T) {
	tr := newTestTrie(t)
	put(t, tr, "do", "verb")
	put(t, tr, "dog", "puppy")
	put(t, tr, "dogglesworth", "cat")

	proof, err := tr.CreateProof([]byte("cat"))
	if err != nil {
		t.Fatalf("CreateProof: %v", err)
	}
	val, err := VerifyProof(tr.Hash(), []byte("cat"), proof, nil)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if val != nil {
		t.Fatalf("VerifyProof(absent) value = %q, want nil", val)
	}
}

func TestVerifyProof_EmptyTrie(t *testing.T) {
	tr := newTestTrie(t)
	proof, err := tr.CreateProof([]byte("anything"))
	if err != nil {
		t.Fatalf("CreateProof: %v", err)
	}
	if proof != nil {
		t.Fatalf("CreateProof on empty trie = %v, want nil", proof)
	}
}

func TestVerifyProof_WrongRootFails(t *testing.T) {
	tr := newTestTrie(t)
	put(t, tr, "do", "verb")
	put(t, tr, "dog", "puppy")

	proof, err := tr.CreateProof([]byte("dog"))
	if err != nil {
		t.Fatalf("CreateProof: %v", err)
	}

	other := newTestTrie(t)
	put(t, other, "cat", "meow")

	if _, err := VerifyProof(other.Hash(), []byte("dog"), proof, nil); err != ErrInvalidProof {
		t.Fatalf("VerifyProof with wrong root: err = %v, want ErrInvalidProof", err)
	}
}

func TestVerifyProof_TruncatedProofFails(t *testing.T) {
	tr := newTestTrie(t)
	put(t, tr, "do", "verb")
	put(t, tr, "dog", "puppy")
	put(t, tr, "dogglesworth", "cat")

	proof, err := tr.CreateProof([]byte("dogglesworth"))
	if err != nil {
		t.Fatalf("CreateProof: %v", err)
	}
	if len(proof) < 2 {
		t.Fatalf("expected a multi-node proof, got %d entries", len(proof))
	}
	// Drop the root entry: the root is always hash-addressed (save_stack
	// force-hashes the top-level node), so verification can never resolve
	// it from the remaining entries alone.
	truncated := proof[1:]
	if _, err := VerifyProof(tr.Hash(), []byte("dogglesworth"), truncated, nil); err != ErrInvalidProof {
		t.Fatalf("VerifyProof with truncated proof: err = %v, want ErrInvalidProof", err)
	}
}

func TestVerifyRangeProof_FullTrieNoProof(t *testing.T) {
	tr := newTestTrie(t)
	keys := [][]byte{[]byte("do"), []byte("dog"), []byte("doge")}
	values := [][]byte{[]byte("verb"), []byte("puppy"), []byte("coin")}
	for i := range keys {
		put(t, tr, string(keys[i]), string(values[i]))
	}

	if err := VerifyRangeProof(tr.Hash(), nil, nil, keys, values, nil, nil); err != nil {
		t.Fatalf("VerifyRangeProof: %v", err)
	}
}

func TestVerifyRangeProof_NonAscendingKeysRejected(t *testing.T) {
	keys := [][]byte{[]byte("b"), []byte("a")}
	values := [][]byte{[]byte("1"), []byte("2")}
	if err := VerifyRangeProof(nil, nil, nil, keys, values, nil, nil); err != ErrInvalidProof {
		t.Fatalf("err = %v, want ErrInvalidProof", err)
	}
}

func TestVerifyRangeProof_WithBoundedProof(t *testing.T) {
	tr := newTestTrie(t)
	entries := []struct{ k, v string }{
		{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}, {"e", "5"},
	}
	for _, e := range entries {
		put(t, tr, e.k, e.v)
	}

	// Prove the contiguous middle range b..d by including every leaf's
	// proof path, so the seeded trie has full coverage to rebuild the
	// overlay without hitting an unproven node.
	var proof [][]byte
	for _, e := range entries {
		p, err := tr.CreateProof([]byte(e.k))
		if err != nil {
			t.Fatalf("CreateProof(%s): %v", e.k, err)
		}
		proof = append(proof, p...)
	}

	keys := [][]byte{[]byte("b"), []byte("c"), []byte("d")}
	values := [][]byte{[]byte("2"), []byte("3"), []byte("4")}

	if err := VerifyRangeProof(tr.Hash(), []byte("aa"), []byte("dd"), keys, values, proof, nil); err != nil {
		t.Fatalf("VerifyRangeProof: %v", err)
	}
}

func TestVerifyRangeProof_EmptyRangeWithBothBounds(t *testing.T) {
	tr := newTestTrie(t)
	// No "c" key present, so [c, c] is genuinely empty.
	entries := []struct{ k, v string }{{"a", "1"}, {"b", "2"}, {"d", "4"}, {"e", "5"}}
	for _, e := range entries {
		put(t, tr, e.k, e.v)
	}

	var proof [][]byte
	for _, e := range entries {
		p, err := tr.CreateProof([]byte(e.k))
		if err != nil {
			t.Fatalf("CreateProof(%s): %v", e.k, err)
		}
		proof = append(proof, p...)
	}

	err := VerifyRangeProof(tr.Hash(), []byte("c"), []byte("c"), nil, nil, proof, nil)
	if err != nil {
		t.Fatalf("VerifyRangeProof(empty range): %v", err)
	}
}

func TestVerifyRangeProof_EmptyRangeRejectsNonEmptyBracket(t *testing.T) {
	tr := newTestTrie(t)
	entries := []struct{ k, v string }{{"a", "1"}, {"b", "2"}, {"d", "4"}, {"e", "5"}}
	for _, e := range entries {
		put(t, tr, e.k, e.v)
	}

	var proof [][]byte
	for _, e := range entries {
		p, err := tr.CreateProof([]byte(e.k))
		if err != nil {
			t.Fatalf("CreateProof(%s): %v", e.k, err)
		}
		proof = append(proof, p...)
	}

	// [b, b] actually contains "b", so a claim of emptiness must be rejected
	// even though no keys/values were supplied to re-derive the root hash.
	err := VerifyRangeProof(tr.Hash(), []byte("b"), []byte("b"), nil, nil, proof, nil)
	if err == nil {
		t.Fatal("VerifyRangeProof accepted an empty-range claim that actually contains a key")
	}
}
