package zkp

import (
	"errors"
	"sync"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// Lean-IMT errors.
var (
	ErrIndexOutOfRange = errors.New("zkp: leaf index out of range")
)

// LeanIMT is an append-only incremental Merkle tree hashed with poseidon2.
// Unlike a classical fixed-depth tree, empty slots are never zero-padded:
// when a node has no sibling at a level, it propagates up unchanged. Any
// implementation that substitutes zero-padding here produces proofs a
// Lean-IMT verifier rejects even though they look well-formed.
//
// levels[0] holds the leaves in insertion order; levels[i] holds level i's
// nodes. The tree has no persistence of its own. It is rebuilt from a leaf
// sequence whenever a caller needs a fresh root or proof.
type LeanIMT struct {
	mu     sync.RWMutex
	levels [][]types.Field
}

// NewLeanIMT returns an empty tree.
func NewLeanIMT() *LeanIMT {
	return &LeanIMT{levels: [][]types.Field{{}}}
}

// Insert appends leaf and returns its index. Only the path from the new
// leaf to the root is recomputed, mirroring the level-by-level walk a fixed
// Merkle tree uses to update a path to root.
func (t *LeanIMT) Insert(leaf types.Field) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	leafIndex := len(t.levels[0])
	t.levels[0] = append(t.levels[0], leaf)

	index := leafIndex
	level := 0
	for len(t.levels[level]) > 1 {
		var parent types.Field
		if index%2 == 1 {
			parent = Poseidon2(t.levels[level][index-1], t.levels[level][index])
		} else {
			// Rightmost node at this level with no sibling yet: propagate.
			parent = t.levels[level][index]
		}

		parentLevel := level + 1
		parentIndex := index / 2
		if parentLevel == len(t.levels) {
			t.levels = append(t.levels, nil)
		}
		if parentIndex < len(t.levels[parentLevel]) {
			t.levels[parentLevel][parentIndex] = parent
		} else {
			t.levels[parentLevel] = append(t.levels[parentLevel], parent)
		}

		index = parentIndex
		level = parentLevel
	}

	return leafIndex
}

// Size returns the current leaf count.
func (t *LeanIMT) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.levels[0])
}

// Depth returns ceil(log2(size)), or 0 for an empty or single-leaf tree.
func (t *LeanIMT) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.depthLocked()
}

func (t *LeanIMT) depthLocked() int {
	return len(t.levels) - 1
}

// Root returns the current root. The root of an empty tree is unspecified
// and must never be consumed by a caller.
func (t *LeanIMT) Root() types.Field {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootLocked()
}

func (t *LeanIMT) rootLocked() types.Field {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return types.FieldZero
	}
	return top[0]
}

// Proof is an inclusion proof against the tree's root at the time it was
// generated. Siblings holds one entry per level from leaf upward;
// SiblingPresent marks which of those entries is a real sibling versus a
// propagate-only level, where the corresponding Siblings entry is unused.
type Proof struct {
	Root           types.Field
	Depth          int
	Index          int
	Siblings       []types.Field
	SiblingPresent []bool
}

// Proof generates an inclusion proof for the leaf at index.
func (t *LeanIMT) Proof(index int) (Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index < 0 || index >= len(t.levels[0]) {
		return Proof{}, ErrIndexOutOfRange
	}

	depth := t.depthLocked()
	siblings := make([]types.Field, depth)
	present := make([]bool, depth)

	idx := index
	for level := 0; level < depth; level++ {
		levelNodes := t.levels[level]
		switch {
		case idx%2 == 1:
			siblings[level] = levelNodes[idx-1]
			present[level] = true
		case idx+1 < len(levelNodes):
			siblings[level] = levelNodes[idx+1]
			present[level] = true
		default:
			present[level] = false
		}
		idx /= 2
	}

	return Proof{
		Root:           t.rootLocked(),
		Depth:          depth,
		Index:          index,
		Siblings:       siblings,
		SiblingPresent: present,
	}, nil
}

// VerifyProof checks that leaf, combined with proof's siblings, reduces to
// proof's recorded root.
func VerifyProof(leaf types.Field, proof Proof) bool {
	current := leaf
	idx := proof.Index

	for level := 0; level < proof.Depth; level++ {
		if proof.SiblingPresent[level] {
			if idx%2 == 1 {
				current = Poseidon2(proof.Siblings[level], current)
			} else {
				current = Poseidon2(current, proof.Siblings[level])
			}
		}
		idx /= 2
	}

	return current.Equal(proof.Root)
}

// BuildLeanIMT constructs a tree from an ordered leaf sequence. Withdrawal
// proof assembly uses this for both the state tree and the approved-set
// tree at proof time.
func BuildLeanIMT(leaves []types.Field) *LeanIMT {
	t := NewLeanIMT()
	for _, leaf := range leaves {
		t.Insert(leaf)
	}
	return t
}

// IndexOf returns the position of target within leaves, or false if absent.
// Withdrawal proof assembly uses this to locate the existing commitment in
// the state tree and the label in the approved-set tree before generating
// their inclusion proofs.
func IndexOf(leaves []types.Field, target types.Field) (int, bool) {
	for i, leaf := range leaves {
		if leaf.Equal(target) {
			return i, true
		}
	}
	return 0, false
}
