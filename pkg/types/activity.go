package types

// ActivityType discriminates the four on-chain event shapes the indexer
// emits. Activities are delivered in ascending block order; the core treats
// that ordering as a hard contract.
type ActivityType uint8

const (
	ActivityDeposit ActivityType = iota
	ActivityWithdrawal
	ActivityCrossChainDeposit
	ActivityCrossChainWithdrawal
)

func (t ActivityType) IsDeposit() bool {
	return t == ActivityDeposit || t == ActivityCrossChainDeposit
}

func (t ActivityType) IsWithdrawal() bool {
	return t == ActivityWithdrawal || t == ActivityCrossChainWithdrawal
}

func (t ActivityType) IsCrossChain() bool {
	return t == ActivityCrossChainDeposit || t == ActivityCrossChainWithdrawal
}

// Activity is the tagged union of indexer-observed events the discovery
// engine consumes. PrecommitmentHash, SpentNullifier, NewCommitment, and
// RefundCommitment travel as decimal-string-encoded field elements on the
// wire; the engine compares them as strings, never as reduced Field values,
// so a string here is the wire representation itself, not a parsed one.
type Activity struct {
	Type ActivityType

	// Deposit / CrossChainDeposit fields.
	PrecommitmentHash string // decimal string of a Field

	// Withdrawal / CrossChainWithdrawal fields.
	SpentNullifier string // decimal string of a Field

	NewCommitment    *string // decimal string of a Field
	RefundCommitment *string // decimal string of a Field
	Amount           *uint64
	Label            *string // decimal string of a Field

	OriginTransactionHash      string
	DestinationTransactionHash *string
	OriginChainID              uint64
	DestinationChainID         *uint64
	BlockNumber                uint64
	Timestamp                  uint64
}

// PageInfo is the cursor-pagination envelope an ActivityFetcher returns
// alongside a page of activities.
type PageInfo struct {
	HasNextPage bool
	EndCursor   string
}

// ActivityPage is one page of the forward-only activity stream.
type ActivityPage struct {
	Items    []Activity
	PageInfo PageInfo
}

// DiscoveryCheckpoint is the persisted state a discovery run resumes from:
// the chains materialized so far, the highest deposit index known to
// belong to the account, and the last processed pagination cursor.
type DiscoveryCheckpoint struct {
	Notes                   []NoteChain
	LastUsedDepositIndex    uint64
	HasLastUsedDepositIndex bool
	LastProcessedCursor     string
}

// DiscoveryResult is what a completed (or cancelled-and-resumed) discovery
// run reports back to the caller.
type DiscoveryResult struct {
	Notes                []NoteChain
	LastUsedDepositIndex uint64
	NewNotesFound        int
	LastProcessedCursor  string
}
