// Package discovery reconstructs a user's note-chain state from a
// forward-only, paginated stream of on-chain activity, resuming across
// crashes via a checkpoint written after every processed page.
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinobi-cash/shinobi-sdk/internal/zkp"
	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// FetchOrder names the direction a page of activities is requested in. The
// engine only ever asks for ascending order: pages must arrive in ascending
// block order for the per-page algorithm's ordering guarantees to hold.
type FetchOrder uint8

const FetchOrderAscending FetchOrder = 0

// ActivityFetcher is the external, paginated activity stream collaborator.
type ActivityFetcher interface {
	Fetch(ctx context.Context, pool types.Address, limit int, cursor string, order FetchOrder) (*types.ActivityPage, error)
}

// NoteStorageProvider is the external checkpoint-persistence collaborator.
// All four operations are idempotent under the same inputs.
type NoteStorageProvider interface {
	GetCachedNotes(ctx context.Context, pk types.Field, pool types.Address) (*types.DiscoveryCheckpoint, error)
	StoreDiscoveredNotes(ctx context.Context, pk types.Field, pool types.Address, notes []types.NoteChain, cursor string) error
	GetNextDepositIndex(ctx context.Context, pk types.Field, pool types.Address) (uint64, error)
	UpdateLastUsedDepositIndex(ctx context.Context, pk types.Field, pool types.Address, depositIndex uint64) error
}

// Progress is reported to an optional observer once per page, after that
// page's checkpoint is written. No report is made within a page.
type Progress struct {
	PagesProcessed           int
	CurrentPageActivityCount int
	DepositsChecked          int
	DepositsMatched          int
	LastCursor               string
	Complete                 bool
}

// ProgressObserver is invoked by Run as discovery advances. An observer must
// not panic; if it does, the engine treats that exactly like a cancellation
// signal: Run returns ErrCancelled and issues no further writes.
type ProgressObserver func(Progress)

// Config bounds a discovery run.
type Config struct {
	PageSize int
	// MaxPages caps the number of pages fetched in a single Run call. Zero
	// means unlimited (bounded only by hasNextPage / cancellation).
	MaxPages int
}

// DefaultConfig returns a 100-item page size with no page cap.
func DefaultConfig() *Config {
	return &Config{PageSize: 100, MaxPages: 0}
}

// Options configures a single Run call.
type Options struct {
	Observer ProgressObserver
}

// Engine drives discovery for a single (publicKey, poolAddress) pair per
// Run call. It holds no state across calls beyond its collaborators. Each
// run owns its own (notes, liveDeposits, cursor) triple.
type Engine struct {
	fetcher ActivityFetcher
	storage NoteStorageProvider
	cfg     *Config
}

// NewEngine constructs an Engine over the given collaborators.
func NewEngine(fetcher ActivityFetcher, storage NoteStorageProvider, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{fetcher: fetcher, storage: storage, cfg: cfg}
}

// liveDeposit tracks one chain whose tail is unspent, activated, and
// carries a positive amount: a candidate for extension on future pages.
type liveDeposit struct {
	chainIndex int
}

// runState is the per-call mutable state; a fresh one is created at the top
// of every Run so concurrent runs never share it.
type runState struct {
	notes         []types.NoteChain
	liveDeposits  []liveDeposit
	lastUsedIndex uint64
	hasLastUsed   bool
	cursor        string
}

// Run reconstructs note-chain state for (k, pool), resuming from any
// existing checkpoint, until the fetcher reports no further page, the
// configured page cap is reached, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, k types.Field, pool types.Address, opts Options) (*types.DiscoveryResult, error) {
	state, err := e.loadCheckpoint(ctx, k, pool)
	if err != nil {
		return nil, err
	}

	newNotesFound := 0
	pagesProcessed := 0

	for {
		select {
		case <-ctx.Done():
			return nil, types.WrapError(types.ErrCancelled, "discovery cancelled before page fetch", ctx.Err())
		default:
		}

		if e.cfg.MaxPages > 0 && pagesProcessed >= e.cfg.MaxPages {
			break
		}

		page, err := e.fetcher.Fetch(ctx, pool, e.cfg.PageSize, state.cursor, FetchOrderAscending)
		if err != nil {
			return nil, types.WrapError(types.ErrFetcher, fmt.Sprintf("fetching page after cursor %q", state.cursor), err)
		}

		depositsChecked, depositsMatched, cancelled, err := e.processPage(ctx, k, pool, state, page.Items, &newNotesFound)
		if err != nil {
			return nil, err
		}
		if cancelled {
			return nil, types.NewError(types.ErrCancelled, "discovery cancelled mid-page; last checkpoint remains valid")
		}

		state.cursor = page.PageInfo.EndCursor
		if err := e.storage.StoreDiscoveredNotes(ctx, k, pool, state.notes, state.cursor); err != nil {
			return nil, types.WrapError(types.ErrStorage, "checkpointing discovered notes", err)
		}
		if state.hasLastUsed {
			if err := e.storage.UpdateLastUsedDepositIndex(ctx, k, pool, state.lastUsedIndex); err != nil {
				return nil, types.WrapError(types.ErrStorage, "persisting last used deposit index", err)
			}
		}

		pagesProcessed++

		if opts.Observer != nil {
			if notifyPanicked(opts.Observer, Progress{
				PagesProcessed:           pagesProcessed,
				CurrentPageActivityCount: len(page.Items),
				DepositsChecked:          depositsChecked,
				DepositsMatched:          depositsMatched,
				LastCursor:               state.cursor,
				Complete:                 !page.PageInfo.HasNextPage,
			}) {
				return nil, types.NewError(types.ErrCancelled, "progress observer panicked; treated as cancellation")
			}
		}

		if !page.PageInfo.HasNextPage {
			break
		}
	}

	return &types.DiscoveryResult{
		Notes:               state.notes,
		LastUsedDepositIndex: state.lastUsedIndex,
		NewNotesFound:        newNotesFound,
		LastProcessedCursor:  state.cursor,
	}, nil
}

func (e *Engine) loadCheckpoint(ctx context.Context, k types.Field, pool types.Address) (*runState, error) {
	checkpoint, err := e.storage.GetCachedNotes(ctx, k, pool)
	if err != nil {
		return nil, types.WrapError(types.ErrStorage, "loading cached notes", err)
	}

	state := &runState{}
	if checkpoint != nil {
		state.notes = checkpoint.Notes
		state.lastUsedIndex = checkpoint.LastUsedDepositIndex
		state.hasLastUsed = checkpoint.HasLastUsedDepositIndex
		state.cursor = checkpoint.LastProcessedCursor
	}

	for i, chain := range state.notes {
		if tail := chain.Tail(); tail != nil && tail.IsSpendable() {
			state.liveDeposits = append(state.liveDeposits, liveDeposit{chainIndex: i})
		}
	}

	return state, nil
}

// notifyPanicked invokes observer, converting any panic into "true" so the
// caller can treat it as a cancellation signal.
func notifyPanicked(observer ProgressObserver, p Progress) (panicked bool) {
	defer func() {
		if recover() != nil {
			panicked = true
		}
	}()
	observer(p)
	return false
}

// processPage runs the strictly ordered per-page algorithm: extend live
// chains, then scan for new deposits. Checkpointing itself happens in Run,
// after this returns, per the ordering guarantee in §5.
func (e *Engine) processPage(ctx context.Context, k types.Field, pool types.Address, state *runState, activities []types.Activity, newNotesFound *int) (depositsChecked, depositsMatched int, cancelled bool, err error) {
	select {
	case <-ctx.Done():
		return 0, 0, true, nil
	default:
	}

	if err := e.extendLiveChains(k, state, activities); err != nil {
		return 0, 0, false, err
	}

	checked, matched, cancelled, err := e.scanNewDeposits(ctx, k, pool, state, activities, newNotesFound)
	return checked, matched, cancelled, err
}

// extendLiveChains implements spec step 1: for every live chain, repeatedly
// match the tail's nullifier hash against a withdrawal in this page, until
// no further match is found or the chain is fully spent.
func (e *Engine) extendLiveChains(k types.Field, state *runState, activities []types.Activity) error {
	var stillLive []liveDeposit

	for _, live := range state.liveDeposits {
		if err := e.extendChain(k, state, live.chainIndex, activities); err != nil {
			return err
		}
		if tail := state.notes[live.chainIndex].Tail(); tail != nil && tail.IsSpendable() {
			stillLive = append(stillLive, live)
		}
	}

	state.liveDeposits = stillLive
	return nil
}

// extendChain repeatedly matches chainIndex's tail nullifier against a
// withdrawal in activities, appending a new change note on each match,
// until no further match is found or the chain is fully spent. Shared by
// both the live-chain extension pass and a freshly matched deposit's
// same-page extension.
func (e *Engine) extendChain(k types.Field, state *runState, chainIndex int, activities []types.Activity) error {
	chain := state.notes[chainIndex]
	tail := chain.Tail()
	if tail == nil || tail.Amount == nil {
		// Pending deposit not yet activated: skip extension entirely.
		return nil
	}

	for {
		nullifier, err := nullifierForCoordinate(k, tail.Coordinate)
		if err != nil {
			return err
		}
		nullifierHash := zkp.NullifierHash(nullifier)

		activity, _, found := findWithdrawalMatch(activities, 0, nullifierHash)
		if !found {
			break
		}

		withdrawnAmount := uint64(0)
		if activity.Amount != nil {
			withdrawnAmount = *activity.Amount
		}
		existing := tail.AmountOrZero()
		if withdrawnAmount > existing {
			return types.WrapError(types.ErrFetcher, "withdrawal amount exceeds remaining note balance", errors.New("withdrawal exceeds tail note balance"))
		}
		remaining := existing - withdrawnAmount

		tail.Status = types.NoteStatusSpent

		newChangeIndex := tail.Coordinate.ChangeIndex + 1
		newAmount := remaining
		newStatus := types.NoteStatusSpent
		if remaining > 0 {
			newStatus = types.NoteStatusUnspent
		}

		var refundCommitment *types.Field
		if activity.RefundCommitment != nil {
			f, err := types.ParseField(*activity.RefundCommitment)
			if err != nil {
				return types.WrapError(types.ErrFetcher, "parsing refund commitment", err)
			}
			refundCommitment = &f
		}

		newNote := &types.Note{
			Coordinate: types.NoteCoordinate{
				PoolAddress:  tail.Coordinate.PoolAddress,
				DepositIndex: tail.Coordinate.DepositIndex,
				ChangeIndex:  newChangeIndex,
				Kind:         types.NoteKindChange,
			},
			Amount:                     &newAmount,
			Label:                      chain[0].Label,
			Status:                     newStatus,
			IsActivated:                true,
			RefundCommitment:           refundCommitment,
			OriginTransactionHash:      mustParseFieldOrZero(activity.OriginTransactionHash),
			DestinationTransactionHash: parseOptionalField(activity.DestinationTransactionHash),
			OriginChainID:              activity.OriginChainID,
			DestinationChainID:         activity.DestinationChainID,
			BlockNumber:                activity.BlockNumber,
			Timestamp:                  activity.Timestamp,
		}

		chain = append(chain, newNote)
		state.notes[chainIndex] = chain
		tail = newNote

		if remaining == 0 {
			break
		}
	}

	return nil
}

// scanNewDeposits implements spec step 2: starting from nextDepositIndex,
// match this account's deposit precommitment against the page, construct a
// deposit note on a match, then immediately extend that new chain using
// only activities after the deposit's own position in the page.
func (e *Engine) scanNewDeposits(ctx context.Context, k types.Field, pool types.Address, state *runState, activities []types.Activity, newNotesFound *int) (depositsChecked, depositsMatched int, cancelled bool, err error) {
	var candidate uint64
	if state.hasLastUsed {
		candidate = state.lastUsedIndex + 1
	} else {
		candidate, err = e.storage.GetNextDepositIndex(ctx, k, pool)
		if err != nil {
			return 0, 0, false, types.WrapError(types.ErrStorage, "reading next deposit index", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return depositsChecked, depositsMatched, true, nil
		default:
		}

		depositsChecked++

		nullifier, err := zkp.DeriveDepositNullifier(k, pool, candidate)
		if err != nil {
			return depositsChecked, depositsMatched, false, err
		}
		secret, err := zkp.DeriveDepositSecret(k, pool, candidate)
		if err != nil {
			return depositsChecked, depositsMatched, false, err
		}
		precommitment := zkp.Precommitment(nullifier, secret)
		target := precommitment.Decimal()

		matchIndex := -1
		var activity types.Activity
		for i, a := range activities {
			if !a.Type.IsDeposit() {
				continue
			}
			if a.PrecommitmentHash == target {
				matchIndex = i
				activity = a
				break
			}
		}
		if matchIndex == -1 {
			break
		}
		depositsMatched++

		var label *types.Field
		isActivated := activity.Label != nil
		if isActivated {
			f, err := types.ParseField(*activity.Label)
			if err != nil {
				return depositsChecked, depositsMatched, false, types.WrapError(types.ErrFetcher, "parsing activity label", err)
			}
			label = &f
		}
		var amount *uint64
		if activity.Amount != nil {
			a := *activity.Amount
			amount = &a
		}

		depositNote := &types.Note{
			Coordinate: types.NoteCoordinate{
				PoolAddress:  zkp.ChecksumAddress(pool),
				DepositIndex: candidate,
				ChangeIndex:  0,
				Kind:         types.NoteKindDeposit,
			},
			Amount:                     amount,
			Label:                      label,
			Status:                     types.NoteStatusUnspent,
			IsActivated:                isActivated,
			OriginTransactionHash:      mustParseFieldOrZero(activity.OriginTransactionHash),
			DestinationTransactionHash: parseOptionalField(activity.DestinationTransactionHash),
			OriginChainID:              activity.OriginChainID,
			DestinationChainID:         activity.DestinationChainID,
			BlockNumber:                activity.BlockNumber,
			Timestamp:                  activity.Timestamp,
		}

		chain := types.NoteChain{depositNote}
		chainIndex := len(state.notes)
		state.notes = append(state.notes, chain)
		*newNotesFound++

		if err := e.extendChain(k, state, chainIndex, activities[matchIndex+1:]); err != nil {
			return depositsChecked, depositsMatched, false, err
		}

		if tail := state.notes[chainIndex].Tail(); tail.IsSpendable() {
			state.liveDeposits = append(state.liveDeposits, liveDeposit{chainIndex: chainIndex})
		}

		state.lastUsedIndex = candidate
		state.hasLastUsed = true
		candidate++
	}

	return depositsChecked, depositsMatched, false, nil
}

func nullifierForCoordinate(k types.Field, coord types.NoteCoordinate) (types.Field, error) {
	if coord.ChangeIndex == 0 {
		return zkp.DeriveDepositNullifier(k, coord.PoolAddress, coord.DepositIndex)
	}
	return zkp.DeriveChangeNullifier(k, coord.PoolAddress, coord.DepositIndex, coord.ChangeIndex)
}

func findWithdrawalMatch(activities []types.Activity, from int, nullifierHash types.Field) (types.Activity, int, bool) {
	target := nullifierHash.Decimal()
	for i := from; i < len(activities); i++ {
		a := activities[i]
		if !a.Type.IsWithdrawal() {
			continue
		}
		if a.SpentNullifier == target {
			return a, i, true
		}
	}
	return types.Activity{}, -1, false
}

func mustParseFieldOrZero(s string) types.Field {
	if s == "" {
		return types.FieldZero
	}
	f, err := types.ParseField(s)
	if err != nil {
		return types.FieldZero
	}
	return f
}

func parseOptionalField(s *string) *types.Field {
	if s == nil {
		return nil
	}
	f := mustParseFieldOrZero(*s)
	return &f
}
