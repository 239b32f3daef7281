package zkp

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

var testPool = common.HexToAddress("0x00000000000000000000000000000000000003")

func testKey(t *testing.T) types.Field {
	t.Helper()
	k, err := ParseUserKey("12345")
	if err != nil {
		t.Fatal(err)
	}
	return k
}

// Deriving the same (k, pool, depositIndex) twice must yield the same
// nullifier/secret pair.
func TestDeriveDepositIsDeterministic(t *testing.T) {
	k := testKey(t)

	n1, err := DeriveDepositNullifier(k, testPool, 5)
	if err != nil {
		t.Fatal(err)
	}
	n2, err := DeriveDepositNullifier(k, testPool, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !n1.Equal(n2) {
		t.Fatal("deposit nullifier derivation must be deterministic")
	}
}

// Hex, decimal, and big.Int forms of the same integer must all reduce to
// the same Field.
func TestParseUserKeyCanonicalizesRepresentations(t *testing.T) {
	decimal, err := ParseUserKey("255")
	if err != nil {
		t.Fatal(err)
	}
	hex, err := ParseUserKey("0xff")
	if err != nil {
		t.Fatal(err)
	}
	if !decimal.Equal(hex) {
		t.Fatal("decimal and hex representations of 255 must parse to the same field element")
	}
	if !decimal.Equal(types.NewFieldFromBigInt(big.NewInt(255))) {
		t.Fatal("decimal and big.Int representations of 255 must reduce to the same field element")
	}
}

// A derivation must not depend on the input address's letter case, since
// ChecksumAddress normalizes first.
func TestDeriveDepositNullifierIsCaseInsensitiveInPoolAddress(t *testing.T) {
	k := testKey(t)
	lower := common.HexToAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beae")
	upper := common.HexToAddress("0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAE")

	a, err := DeriveDepositNullifier(k, lower, 1)
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveDepositNullifier(k, upper, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatal("derivation must be case-insensitive on pool address")
	}
}

// Distinct roles at the same coordinate must never collide, and the
// deposit/change branches must diverge at changeIndex 0 vs 1.
func TestDomainSeparationAcrossRoles(t *testing.T) {
	k := testKey(t)

	depositNullifier, err := DeriveDepositNullifier(k, testPool, 0)
	if err != nil {
		t.Fatal(err)
	}
	depositSecret, err := DeriveDepositSecret(k, testPool, 0)
	if err != nil {
		t.Fatal(err)
	}
	changeNullifier, err := DeriveChangeNullifier(k, testPool, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	refundNullifier, err := DeriveRefundNullifier(k, testPool, 0, 1)
	if err != nil {
		t.Fatal(err)
	}

	if depositNullifier.Equal(depositSecret) {
		t.Fatal("deposit nullifier and secret must not collide")
	}
	if depositNullifier.Equal(changeNullifier) {
		t.Fatal("deposit and change nullifiers must not collide")
	}
	if changeNullifier.Equal(refundNullifier) {
		t.Fatal("change and refund nullifiers at the same coordinate must not collide")
	}
}

// Changing depositIndex or changeIndex must change the derived values.
func TestDeriveIsSensitiveToIndices(t *testing.T) {
	k := testKey(t)

	d0, err := DeriveDepositNullifier(k, testPool, 0)
	if err != nil {
		t.Fatal(err)
	}
	d1, err := DeriveDepositNullifier(k, testPool, 1)
	if err != nil {
		t.Fatal(err)
	}
	if d0.Equal(d1) {
		t.Fatal("distinct deposit indices must derive distinct nullifiers")
	}

	c1, err := DeriveChangeNullifier(k, testPool, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := DeriveChangeNullifier(k, testPool, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if c1.Equal(c2) {
		t.Fatal("distinct change indices must derive distinct nullifiers")
	}
}

func TestCommitmentAndPrecommitmentChain(t *testing.T) {
	k := testKey(t)
	result, err := DeriveDepositPrecommitment(k, testPool, 3)
	if err != nil {
		t.Fatal(err)
	}

	pre := Precommitment(result.Nullifier, result.Secret)
	label := types.NewFieldFromUint64(99)
	commitment := Commitment(1000, label, pre)

	// Commitment must depend on amount: a different amount must yield a
	// different commitment for the same precommitment and label.
	other := Commitment(1001, label, pre)
	if commitment.Equal(other) {
		t.Fatal("commitment must be sensitive to amount")
	}

	nh := NullifierHash(result.Nullifier)
	if nh.Equal(result.Nullifier) {
		t.Fatal("nullifier hash must differ from the raw nullifier")
	}
}

func TestParseUserKeyRejectsGarbage(t *testing.T) {
	if _, err := ParseUserKey("not-a-number"); err == nil {
		t.Fatal("expected error parsing an invalid key literal")
	} else if sdkErr, ok := err.(*types.SDKError); !ok || sdkErr.Kind != types.ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey SDKError, got %v", err)
	}
}
