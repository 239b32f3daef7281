package zkp

import (
	"math/big"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// WithdrawalIntent is the caller-supplied half of a withdrawal: what is
// being withdrawn to, and which pool scope binds the context hash.
type WithdrawalIntent struct {
	Data      types.WithdrawalData
	PoolScope *big.Int
}

// BuildContext computes the withdrawal context hash: the
// ((address, bytes), uint256) tuple, standard (non-packed) ABI encoded,
// reduced into the field.
func BuildContext(intent WithdrawalIntent) (types.Field, error) {
	encoded, err := ABIEncodeContextTuple(intent.Data, intent.PoolScope)
	if err != nil {
		return types.Field{}, err
	}
	return FieldFromKeccak(encoded), nil
}

// existingNullifierSecret derives a note's own nullifier/secret pair from
// its coordinate: the deposit branch at changeIndex 0, the change branch
// otherwise.
func existingNullifierSecret(k types.Field, coord types.NoteCoordinate) (nullifier, secret types.Field, err error) {
	if coord.ChangeIndex == 0 {
		nullifier, err = DeriveDepositNullifier(k, coord.PoolAddress, coord.DepositIndex)
		if err != nil {
			return types.Field{}, types.Field{}, err
		}
		secret, err = DeriveDepositSecret(k, coord.PoolAddress, coord.DepositIndex)
		return nullifier, secret, err
	}
	nullifier, err = DeriveChangeNullifier(k, coord.PoolAddress, coord.DepositIndex, coord.ChangeIndex)
	if err != nil {
		return types.Field{}, types.Field{}, err
	}
	secret, err = DeriveChangeSecret(k, coord.PoolAddress, coord.DepositIndex, coord.ChangeIndex)
	return nullifier, secret, err
}

// BuildWithdrawalContext assembles everything derivable before the two
// Merkle proofs: the context hash, the spent note's own commitment, the
// fresh change note, and (for cross-chain withdrawals) the refund note.
func BuildWithdrawalContext(k types.Field, note *types.Note, label types.Field, intent WithdrawalIntent, crossChain bool) (*types.WithdrawalContext, error) {
	context, err := BuildContext(intent)
	if err != nil {
		return nil, err
	}

	existingNullifier, existingSecret, err := existingNullifierSecret(k, note.Coordinate)
	if err != nil {
		return nil, err
	}
	existingPrecommitment := Precommitment(existingNullifier, existingSecret)
	existingCommitment := Commitment(note.AmountOrZero(), label, existingPrecommitment)

	newChangeIndex := note.Coordinate.ChangeIndex + 1
	newNullifier, err := DeriveChangeNullifier(k, note.Coordinate.PoolAddress, note.Coordinate.DepositIndex, newChangeIndex)
	if err != nil {
		return nil, err
	}
	newSecret, err := DeriveChangeSecret(k, note.Coordinate.PoolAddress, note.Coordinate.DepositIndex, newChangeIndex)
	if err != nil {
		return nil, err
	}

	wctx := &types.WithdrawalContext{
		Context:            context,
		ExistingCommitment: existingCommitment,
		ExistingNullifier:  existingNullifier,
		ExistingSecret:     existingSecret,
		NewNullifier:       newNullifier,
		NewSecret:          newSecret,
	}

	if crossChain {
		refundNullifier, err := DeriveRefundNullifier(k, note.Coordinate.PoolAddress, note.Coordinate.DepositIndex, newChangeIndex)
		if err != nil {
			return nil, err
		}
		refundSecret, err := DeriveRefundSecret(k, note.Coordinate.PoolAddress, note.Coordinate.DepositIndex, newChangeIndex)
		if err != nil {
			return nil, err
		}
		// The circuit enforces amount equality between the refund note and
		// the spent note.
		refundCommitment := Commitment(note.AmountOrZero(), label, Precommitment(refundNullifier, refundSecret))

		wctx.RefundNullifier = &refundNullifier
		wctx.RefundSecret = &refundSecret
		wctx.RefundCommitment = &refundCommitment
	}

	return wctx, nil
}

// padSiblings copies proof siblings into a fixed Groth16SiblingsLen array,
// padding the remainder with field-zero.
func padSiblings(proof Proof) [types.Groth16SiblingsLen]types.Field {
	var out [types.Groth16SiblingsLen]types.Field
	for i := 0; i < types.Groth16SiblingsLen; i++ {
		if i < len(proof.Siblings) && proof.SiblingPresent[i] {
			out[i] = proof.Siblings[i]
		} else {
			out[i] = types.FieldZero
		}
	}
	return out
}

// guardIndex collapses a not-found or negative index to 0. Go has no
// integer NaN, so this is a plain bound check rather than a NaN guard:
// a degenerate single-leaf tree always yields index 0 regardless.
func guardIndex(index int, found bool) int {
	if !found || index < 0 {
		return 0
	}
	return index
}

// AssembleGroth16Input builds the full record a Groth16 prover consumes,
// given the withdrawal context already computed and the indexer-supplied
// state-tree/approved-set leaf sets.
func AssembleGroth16Input(
	wctx *types.WithdrawalContext,
	note *types.Note,
	label types.Field,
	withdrawnValue uint64,
	stateLeaves []types.Field,
	aspLeaves []types.Field,
) (*types.Groth16InputRecord, error) {
	stateTree := BuildLeanIMT(stateLeaves)
	aspTree := BuildLeanIMT(aspLeaves)

	stateIndex, foundState := IndexOf(stateLeaves, wctx.ExistingCommitment)
	if !foundState {
		return nil, types.NewError(types.ErrCommitmentNotInStateTree, "existing commitment absent from state-tree leaves")
	}
	aspIndex, foundASP := IndexOf(aspLeaves, label)
	if !foundASP {
		return nil, types.NewError(types.ErrLabelNotInApprovedTree, "label absent from approved-set leaves")
	}

	stateProof, err := stateTree.Proof(stateIndex)
	if err != nil {
		return nil, err
	}
	aspProof, err := aspTree.Proof(aspIndex)
	if err != nil {
		return nil, err
	}

	record := &types.Groth16InputRecord{
		WithdrawnValue:    withdrawnValue,
		StateRoot:         stateTree.Root(),
		ASPRoot:           aspTree.Root(),
		StateTreeDepth:    stateTree.Depth(),
		ASPTreeDepth:      aspTree.Depth(),
		Context:           wctx.Context,
		Label:             label,
		ExistingValue:     note.AmountOrZero(),
		ExistingNullifier: wctx.ExistingNullifier,
		ExistingSecret:    wctx.ExistingSecret,
		NewNullifier:      wctx.NewNullifier,
		NewSecret:         wctx.NewSecret,
		RefundNullifier:   wctx.RefundNullifier,
		RefundSecret:      wctx.RefundSecret,
		StateSiblings:     padSiblings(stateProof),
		ASPSiblings:       padSiblings(aspProof),
		StateIndex:        guardIndex(stateIndex, foundState),
		ASPIndex:          guardIndex(aspIndex, foundASP),
	}

	return record, nil
}
