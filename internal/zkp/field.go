// Package zkp implements the cryptographic core of the shinobi privacy-pool
// SDK: field and hash primitives, note derivation, the Lean incremental
// Merkle tree, and withdrawal-context/proof-input assembly.
package zkp

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/shinobi-cash/shinobi-sdk/pkg/common"
	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// Field primitive errors.
var (
	ErrTooManyElements = errors.New("zkp: poseidon hash accepts at most 16 field elements")
	ErrNoElements      = errors.New("zkp: poseidon hash requires at least one field element")
)

// poseidonHasherFactory is a package-level indirection over the sponge
// constructor, so the hash construction can be swapped in one place if a
// future circuit revision changes the sponge parametrization.
var poseidonHasherFactory = poseidon2.NewMerkleDamgardHasher

// ModP reduces an arbitrary-precision integer into the BN254 scalar field.
// ModP assumes x is non-negative, which holds for every caller in this
// package: keccak digests and derivation accumulators are always
// non-negative. big.Int.Mod's Euclidean reduction is sufficient under that
// assumption.
func ModP(x *big.Int) types.Field {
	return types.NewFieldFromBigInt(x)
}

// Keccak256 is the standard Keccak-256 hash, delegated to go-ethereum's
// implementation so it is bit-identical to what the on-chain contracts use.
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// FieldFromKeccak hashes data with Keccak-256 and reduces the digest into the
// scalar field. It is a uniform-ish reducer, not a uniform sampler. The bias
// this introduces is cryptographically negligible against the BN254 modulus.
func FieldFromKeccak(data []byte) types.Field {
	digest := new(big.Int).SetBytes(Keccak256(data))
	return ModP(digest)
}

// hashFieldElements feeds a sequence of field elements through the
// Poseidon2 Merkle-Damgard sponge and reduces the digest back into the
// field. Poseidon1/2/3 are thin, arity-pinned wrappers over this so call
// sites can never accidentally mix up arities. A mismatch here silently
// invalidates every proof built against the on-chain verifier.
func hashFieldElements(elems ...fr.Element) (types.Field, error) {
	if len(elems) == 0 {
		return types.Field{}, ErrNoElements
	}
	if len(elems) > 16 {
		return types.Field{}, ErrTooManyElements
	}

	hasher := poseidonHasherFactory()
	for _, e := range elems {
		b := e.Bytes()
		hasher.Write(b[:])
	}

	digest := hasher.Sum(nil)
	return ModP(new(big.Int).SetBytes(digest)), nil
}

func toFrElement(f types.Field) fr.Element {
	var e fr.Element
	b := f.Bytes32()
	e.SetBytes(b[:])
	return e
}

// Poseidon1 computes Poseidon(a). It is used for the nullifier hash
// published on spend.
func Poseidon1(a types.Field) types.Field {
	out, err := hashFieldElements(toFrElement(a))
	if err != nil {
		// Unreachable: a fixed single-element call can never trip either
		// error branch of hashFieldElements.
		panic(err)
	}
	return out
}

// Poseidon2 computes Poseidon(a, b). It is used for precommitments and
// Lean-IMT internal nodes.
func Poseidon2(a, b types.Field) types.Field {
	out, err := hashFieldElements(toFrElement(a), toFrElement(b))
	if err != nil {
		panic(err)
	}
	return out
}

// Poseidon3 computes Poseidon(a, b, c). It is used for full commitment
// construction over amount, label, and precommitment.
func Poseidon3(a, b, c types.Field) types.Field {
	out, err := hashFieldElements(toFrElement(a), toFrElement(b), toFrElement(c))
	if err != nil {
		panic(err)
	}
	return out
}

// ChecksumAddress normalizes addr per EIP-55 before it is packed into any
// hashing input. This removes the ambiguity of mixed-case addresses
// producing different derivations.
func ChecksumAddress(addr types.Address) types.Address {
	return ethcommon.HexToAddress(addr.Hex())
}

// packedTag enumerates the ABI types ABIEncodePacked understands. Only the
// subset note derivation actually needs is implemented.
type packedTag uint8

const (
	PackedAddress packedTag = iota
	PackedUint64
	PackedBytes32
	PackedString
)

// ABIEncodePacked deterministically packs values with no length prefixes or
// padding between elements, matching Solidity's abi.encodePacked semantics.
// It is used only inside hashing inputs, never for transport encoding.
func ABIEncodePacked(tags []packedTag, values []interface{}) ([]byte, error) {
	if len(tags) != len(values) {
		return nil, errors.New("zkp: ABIEncodePacked tag/value length mismatch")
	}

	chunks := make([][]byte, len(tags))
	for i, tag := range tags {
		switch tag {
		case PackedAddress:
			addr, ok := values[i].(types.Address)
			if !ok {
				return nil, errors.New("zkp: ABIEncodePacked expected address value")
			}
			chunks[i] = addr.Bytes()

		case PackedUint64:
			v, ok := values[i].(uint64)
			if !ok {
				return nil, errors.New("zkp: ABIEncodePacked expected uint64 value")
			}
			var b [8]byte
			for j := 7; j >= 0; j-- {
				b[j] = byte(v)
				v >>= 8
			}
			chunks[i] = b[:]

		case PackedBytes32:
			v, ok := values[i].([32]byte)
			if !ok {
				return nil, errors.New("zkp: ABIEncodePacked expected bytes32 value")
			}
			chunks[i] = v[:]

		case PackedString:
			v, ok := values[i].(string)
			if !ok {
				return nil, errors.New("zkp: ABIEncodePacked expected string value")
			}
			chunks[i] = []byte(v)

		default:
			return nil, errors.New("zkp: ABIEncodePacked unknown tag")
		}
	}
	return common.ConcatBytes(chunks...), nil
}

// contextTupleType is the ((address,bytes),uint256) tuple the context hash
// is built from, using standard (non-packed) ABI encoding. It is built once
// at init time and reused across calls rather than reconstructed per call.
var contextTupleType, contextUint256Type abi.Type

func init() {
	var err error
	contextTupleType, err = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "recipient", Type: "address"},
		{Name: "data", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	contextUint256Type, err = abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
}

type withdrawalDataTuple struct {
	Recipient ethcommon.Address
	Data      []byte
}

// ABIEncodeContextTuple ABI-encodes ((address,bytes),uint256) using standard
// (not packed) encoding. This is the first step of withdrawal context
// derivation.
func ABIEncodeContextTuple(data types.WithdrawalData, poolScope *big.Int) ([]byte, error) {
	args := abi.Arguments{
		{Type: contextTupleType},
		{Type: contextUint256Type},
	}
	return args.Pack(withdrawalDataTuple{
		Recipient: data.Recipient,
		Data:      data.Data,
	}, poolScope)
}
