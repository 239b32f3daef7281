package types

import "github.com/ethereum/go-ethereum/common"

// Address is the 20-byte, EIP-55-checksummable account/pool identifier. It
// is go-ethereum's own address type rather than a reimplementation, since
// checksum normalization (EIP-55) must be bit-exact with the on-chain
// contract's notion of an address.
type Address = common.Address

// NoteKind discriminates the three note flavors derived at a single
// coordinate. Deposit is only ever valid at ChangeIndex 0; Refund notes
// share their coordinate with the change note they stand in for.
type NoteKind uint8

const (
	NoteKindDeposit NoteKind = iota
	NoteKindChange
	NoteKindRefund
)

func (k NoteKind) String() string {
	switch k {
	case NoteKindDeposit:
		return "deposit"
	case NoteKindChange:
		return "change"
	case NoteKindRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// NoteStatus is the spend state of a note.
type NoteStatus uint8

const (
	NoteStatusUnspent NoteStatus = iota
	NoteStatusSpent
)

// NoteCoordinate identifies a derivation point: account key is implicit
// (derivation always happens against a specific key), pool/deposit/change
// index and kind are explicit.
type NoteCoordinate struct {
	PoolAddress  Address
	DepositIndex uint64
	ChangeIndex  uint64
	Kind         NoteKind
}

// Note is one record in a note chain. Amount and Label are nil while a
// deposit is "pending". Discovery fills them only from the deposit activity
// it matched; a note recorded as pending is not updated by later pages.
// Commitment equality is decidable only once both are present.
type Note struct {
	Coordinate NoteCoordinate

	Amount *uint64 // base units; nil means "pending"
	Label  *Field  // nil means "pending"

	Status           NoteStatus
	IsActivated      bool
	RefundCommitment *Field

	OriginTransactionHash      Field
	DestinationTransactionHash *Field
	OriginChainID              uint64
	DestinationChainID         *uint64
	BlockNumber                uint64
	Timestamp                  uint64
}

// AmountOrZero returns the note's amount, treating a pending (nil) amount
// as zero. A missing amount folds into "0" rather than being modeled as a
// distinct not-yet-activated state.
func (n *Note) AmountOrZero() uint64 {
	if n.Amount == nil {
		return 0
	}
	return *n.Amount
}

// IsSpendable reports whether this note is a candidate for chain extension:
// unspent, activated, and carrying a positive amount. A pending deposit
// (amount absent) is never spendable, so chain extension is skipped
// entirely while the tail's amount is absent.
func (n *Note) IsSpendable() bool {
	return n.Status == NoteStatusUnspent && n.IsActivated && n.AmountOrZero() > 0
}

// NoteChain is an ordered sequence of notes sharing (PoolAddress,
// DepositIndex) with strictly increasing ChangeIndex.
type NoteChain []*Note

// Tail returns the chain's most recent note, or nil for an empty chain.
func (c NoteChain) Tail() *Note {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// DepositIndex returns the chain's deposit index, reading the head note's
// coordinate (every note in a chain shares it).
func (c NoteChain) DepositIndex() uint64 {
	if len(c) == 0 {
		return 0
	}
	return c[0].Coordinate.DepositIndex
}
