package types

// WithdrawalData carries the protocol-level withdrawal intent that gets
// bound into the context hash: a destination recipient/calldata pair, ABI
// encoded as the on-chain tuple (address, bytes).
type WithdrawalData struct {
	Recipient Address
	Data      []byte
}

// WithdrawalContext is the intermediate output of withdrawal-context
// derivation: everything derived before the two Merkle proofs are
// assembled.
type WithdrawalContext struct {
	Context Field

	ExistingCommitment Field
	ExistingNullifier  Field
	ExistingSecret     Field

	NewNullifier Field
	NewSecret    Field

	// Cross-chain only.
	RefundNullifier  *Field
	RefundSecret     *Field
	RefundCommitment *Field
}

// IsCrossChain reports whether this context carries a refund leg.
func (w *WithdrawalContext) IsCrossChain() bool {
	return w.RefundNullifier != nil
}

// Groth16InputRecord is the full set of named numeric signals handed to the
// prover verbatim. Every field is either a field element (rendered as a
// decimal string by Field.Decimal) or a small non-negative integer;
// Groth16SiblingsLen is fixed at 32 by the circuit's hard-wired depth.
const Groth16SiblingsLen = 32

type Groth16InputRecord struct {
	WithdrawnValue uint64
	StateRoot      Field
	ASPRoot        Field
	StateTreeDepth int
	ASPTreeDepth   int

	Context           Field
	Label             Field
	ExistingValue     uint64
	ExistingNullifier Field
	ExistingSecret    Field

	NewNullifier Field
	NewSecret    Field

	// Cross-chain only.
	RefundNullifier *Field
	RefundSecret    *Field

	StateSiblings [Groth16SiblingsLen]Field
	ASPSiblings   [Groth16SiblingsLen]Field
	StateIndex    int
	ASPIndex      int
}

// DepositCommitmentResult is what the SDK hands back to a caller after
// deriving a fresh deposit coordinate: the precommitment a user actually
// submits in a deposit transaction, plus everything needed to recognize and
// later spend the resulting note.
type DepositCommitmentResult struct {
	Precommitment string // "0x" + hex(poseidon2(nullifier, secret))
	DepositIndex  uint64
	PoolAddress   Address
	Nullifier     Field
	Secret        Field
}
