package zkp

import (
	"testing"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

func leavesN(n int) []types.Field {
	out := make([]types.Field, n)
	for i := range out {
		out[i] = types.NewFieldFromUint64(uint64(i + 1))
	}
	return out
}

func TestLeanIMTDepthGrowsWithSize(t *testing.T) {
	cases := []struct {
		size, depth int
	}{
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
	}
	for _, c := range cases {
		tree := BuildLeanIMT(leavesN(c.size))
		if tree.Depth() != c.depth {
			t.Errorf("size %d: depth = %d, want %d", c.size, tree.Depth(), c.depth)
		}
	}
}

// Every leaf's generated proof must verify against the tree's current
// root, for a range of odd and even tree sizes that exercise the
// propagate-without-sibling path.
func TestLeanIMTProofRoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 7, 8, 15} {
		tree := BuildLeanIMT(leavesN(size))
		for i := 0; i < size; i++ {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("size %d index %d: unexpected error: %v", size, i, err)
			}
			leaf := types.NewFieldFromUint64(uint64(i + 1))
			if !VerifyProof(leaf, proof) {
				t.Errorf("size %d index %d: proof failed to verify", size, i)
			}
		}
	}
}

func TestLeanIMTProofRejectsWrongLeaf(t *testing.T) {
	tree := BuildLeanIMT(leavesN(4))
	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatal(err)
	}
	wrongLeaf := types.NewFieldFromUint64(999)
	if VerifyProof(wrongLeaf, proof) {
		t.Fatal("proof must not verify against a different leaf")
	}
}

func TestLeanIMTProofIndexOutOfRange(t *testing.T) {
	tree := BuildLeanIMT(leavesN(3))
	if _, err := tree.Proof(3); err != ErrIndexOutOfRange {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := tree.Proof(-1); err != ErrIndexOutOfRange {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestLeanIMTIncrementalInsertMatchesBulkBuild(t *testing.T) {
	leaves := leavesN(6)

	incremental := NewLeanIMT()
	for _, leaf := range leaves {
		incremental.Insert(leaf)
	}

	bulk := BuildLeanIMT(leaves)

	if !incremental.Root().Equal(bulk.Root()) {
		t.Fatal("incremental insertion must produce the same root as a bulk build over the same leaves")
	}
}

func TestIndexOfFindsAndRejects(t *testing.T) {
	leaves := leavesN(5)
	idx, found := IndexOf(leaves, types.NewFieldFromUint64(3))
	if !found || idx != 2 {
		t.Fatalf("IndexOf(3) = (%d, %v), want (2, true)", idx, found)
	}

	_, found = IndexOf(leaves, types.NewFieldFromUint64(999))
	if found {
		t.Fatal("IndexOf must report false for an absent leaf")
	}
}
