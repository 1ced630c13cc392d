// Package claims implements a Merkle-proof airdrop distributor: holders of
// the initial allocation claim their tokens out of a funded distribution
// account by presenting a proof against a fixed root.
package claims

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Leaf is one allocation entry: a claim index, the receiving account and the
// amount in true-token units.
type Leaf struct {
	Index   uint64         `json:"index"`
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// LeafHash is keccak256(index || account || amount) with the index as a
// big-endian uint256 and the amount left-padded to 32 bytes.
func LeafHash(leaf Leaf) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(common.BigToHash(new(big.Int).SetUint64(leaf.Index)).Bytes())
	h.Write(leaf.Account.Bytes())
	h.Write(common.BigToHash(leaf.Amount).Bytes())
	return common.BytesToHash(h.Sum(nil))
}

// hashPair combines two nodes in sorted order, so proofs carry no left/right
// direction bits.
func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(a.Bytes())
	h.Write(b.Bytes())
	return common.BytesToHash(h.Sum(nil))
}

// VerifyProof folds a proof into the leaf hash and compares the result to
// the root.
func VerifyProof(root common.Hash, leaf Leaf, proof []common.Hash) bool {
	node := LeafHash(leaf)
	for _, sib := range proof {
		node = hashPair(node, sib)
	}
	return node == root
}

// Tree is a complete Merkle tree over a fixed allocation set, used to derive
// the distribution root and generate per-leaf proofs.
type Tree struct {
	root   common.Hash
	leaves []Leaf
	levels [][]common.Hash
}

// BuildTree constructs the tree. Leaves are sorted by index; duplicate
// indexes are rejected.
func BuildTree(leaves []Leaf) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("claims: empty allocation set")
	}

	sorted := make([]Leaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Index == sorted[i-1].Index {
			return nil, fmt.Errorf("claims: duplicate claim index %d", sorted[i].Index)
		}
	}

	level := make([]common.Hash, len(sorted))
	for i, leaf := range sorted {
		level[i] = LeafHash(leaf)
	}

	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				// Odd node is carried up unchanged.
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{root: level[0], leaves: sorted, levels: levels}, nil
}

// Root returns the distribution root.
func (t *Tree) Root() common.Hash {
	return t.root
}

// Leaves returns the sorted allocation set.
func (t *Tree) Leaves() []Leaf {
	out := make([]Leaf, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// Proof generates the sibling path for the leaf at the given position in
// the sorted set.
func (t *Tree) Proof(pos int) ([]common.Hash, error) {
	if pos < 0 || pos >= len(t.leaves) {
		return nil, fmt.Errorf("claims: proof position %d out of range", pos)
	}

	var proof []common.Hash
	idx := pos
	for _, level := range t.levels[:len(t.levels)-1] {
		sib := idx ^ 1
		if sib < len(level) {
			proof = append(proof, level[sib])
		}
		idx /= 2
	}
	return proof, nil
}
