package zkp

import (
	"math/big"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// domainTag is one of the six fixed role/asset tags note derivation mixes in
// for domain separation. The literal strings are a deployed wire contract.
// Changing any of them invalidates every existing commitment.
type domainTag struct {
	bytes32 [32]byte
	field   types.Field
}

func newDomainTag(label string) domainTag {
	raw := Keccak256([]byte("shinobi.cash:" + label))
	var t domainTag
	copy(t.bytes32[:], raw)
	t.field = FieldFromKeccak(raw)
	return t
}

var (
	tagDepositNullifier = newDomainTag("DepositNullifierV1")
	tagDepositSecret    = newDomainTag("DepositSecretV1")
	tagChangeNullifier  = newDomainTag("ChangeNullifierV1")
	tagChangeSecret     = newDomainTag("ChangeSecretV1")
	tagRefundNullifier  = newDomainTag("RefundNullifierV1")
	tagRefundSecret     = newDomainTag("RefundSecretV1")
)

// deriveContext builds the typed context field a single derivation mixes
// into its PRF call. tag appears twice in the overall derivation: once here,
// packed raw into the hash input, and again as dom below. Both inclusions
// are part of the deployed derivation: dropping either one changes every
// derived value.
func deriveContext(pool types.Address, depositIndex, changeIndex uint64, tag domainTag) (types.Field, error) {
	packed, err := ABIEncodePacked(
		[]packedTag{PackedAddress, PackedUint64, PackedUint64, PackedBytes32},
		[]interface{}{ChecksumAddress(pool), depositIndex, changeIndex, tag.bytes32},
	)
	if err != nil {
		return types.Field{}, err
	}
	return FieldFromKeccak(packed), nil
}

// prf is the keyed pseudorandom function every nullifier/secret derivation
// reduces to: prf(k, ctx, dom) = mod_p(poseidon2(k, mod_p(poseidon2(ctx, dom)))).
func prf(k, ctx, dom types.Field) types.Field {
	inner := Poseidon2(ctx, dom)
	return Poseidon2(k, inner)
}

func derive(k types.Field, pool types.Address, depositIndex, changeIndex uint64, tag domainTag) (types.Field, error) {
	ctx, err := deriveContext(pool, depositIndex, changeIndex, tag)
	if err != nil {
		return types.Field{}, err
	}
	return prf(k, ctx, tag.field), nil
}

// DeriveDepositNullifier derives the nullifier for a fresh deposit at
// changeIndex 0.
func DeriveDepositNullifier(k types.Field, pool types.Address, depositIndex uint64) (types.Field, error) {
	return derive(k, pool, depositIndex, 0, tagDepositNullifier)
}

// DeriveDepositSecret derives the secret for a fresh deposit at changeIndex 0.
func DeriveDepositSecret(k types.Field, pool types.Address, depositIndex uint64) (types.Field, error) {
	return derive(k, pool, depositIndex, 0, tagDepositSecret)
}

// DeriveChangeNullifier derives a change note's nullifier. changeIndex must
// be >= 1; changeIndex 0 belongs to the deposit branch.
func DeriveChangeNullifier(k types.Field, pool types.Address, depositIndex, changeIndex uint64) (types.Field, error) {
	return derive(k, pool, depositIndex, changeIndex, tagChangeNullifier)
}

// DeriveChangeSecret derives a change note's secret. changeIndex must be >= 1.
func DeriveChangeSecret(k types.Field, pool types.Address, depositIndex, changeIndex uint64) (types.Field, error) {
	return derive(k, pool, depositIndex, changeIndex, tagChangeSecret)
}

// DeriveRefundNullifier derives the nullifier of the contingency refund note
// standing in for the change note at the same coordinate.
func DeriveRefundNullifier(k types.Field, pool types.Address, depositIndex, changeIndex uint64) (types.Field, error) {
	return derive(k, pool, depositIndex, changeIndex, tagRefundNullifier)
}

// DeriveRefundSecret derives the secret of the contingency refund note.
func DeriveRefundSecret(k types.Field, pool types.Address, depositIndex, changeIndex uint64) (types.Field, error) {
	return derive(k, pool, depositIndex, changeIndex, tagRefundSecret)
}

// Precommitment is the value a depositor reveals on-chain: poseidon2(nullifier, secret).
func Precommitment(nullifier, secret types.Field) types.Field {
	return Poseidon2(nullifier, secret)
}

// Commitment is the full note identity inserted into the state tree on
// activation: poseidon3(amount, label, precommitment).
func Commitment(amount uint64, label, precommitment types.Field) types.Field {
	return Poseidon3(types.NewFieldFromUint64(amount), label, precommitment)
}

// NullifierHash is published on spend to prevent double-spend: poseidon1(nullifier).
func NullifierHash(nullifier types.Field) types.Field {
	return Poseidon1(nullifier)
}

// DeriveDepositPrecommitment is the convenience the deposit flow actually
// needs: the only externally visible artifact of a fresh deposit is its
// precommitment, not the raw nullifier/secret pair.
func DeriveDepositPrecommitment(k types.Field, pool types.Address, depositIndex uint64) (types.DepositCommitmentResult, error) {
	nullifier, err := DeriveDepositNullifier(k, pool, depositIndex)
	if err != nil {
		return types.DepositCommitmentResult{}, err
	}
	secret, err := DeriveDepositSecret(k, pool, depositIndex)
	if err != nil {
		return types.DepositCommitmentResult{}, err
	}
	pre := Precommitment(nullifier, secret)

	return types.DepositCommitmentResult{
		Precommitment: "0x" + bigIntHex(pre.BigInt()),
		DepositIndex:  depositIndex,
		PoolAddress:   ChecksumAddress(pool),
		Nullifier:     nullifier,
		Secret:        secret,
	}, nil
}

func bigIntHex(x *big.Int) string {
	return x.Text(16)
}

// ParseUserKey accepts a hex string ("0x...") or a decimal string, with
// surrounding whitespace trimmed, reducing either modulo p. Both
// representations of the same integer parse to the same Field, which is
// also what types.NewFieldFromBigInt returns for that integer.
func ParseUserKey(s string) (types.Field, error) {
	k, err := types.ParseField(s)
	if err != nil {
		return types.Field{}, types.WrapError(types.ErrInvalidKey, "parsing user key", err)
	}
	return k, nil
}
