package zkp

import (
	"bytes"
	"context"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"

	"github.com/shinobi-cash/shinobi-sdk/pkg/types"
)

// CircuitFileLoader sources the three artifacts a Groth16 withdrawal proof
// needs: the compiled constraint system, the proving key, and the
// verifying key. The core never reads these from disk itself. A host
// application may back this with a local file, an embedded FS, or a
// remote fetch.
type CircuitFileLoader interface {
	LoadR1CS(ctx context.Context) (constraint.ConstraintSystem, error)
	LoadProvingKey(ctx context.Context) (groth16.ProvingKey, error)
	LoadVerifyingKey(ctx context.Context) (groth16.VerifyingKey, error)
}

// ProverConfig configures a Prover. There is currently nothing to
// configure beyond the loader itself; the struct exists so host
// applications have a stable extension point, matching the Config/
// DefaultConfig shape used elsewhere in this module.
type ProverConfig struct{}

// DefaultProverConfig returns the zero-value configuration.
func DefaultProverConfig() *ProverConfig {
	return &ProverConfig{}
}

// Prover wraps gnark's groth16 backend behind the black-box fullProve/verify
// contract. Circuit artifacts are read-only once loaded and are cached
// behind the first call: loading is lazy and memoized, never repeated.
type Prover struct {
	mu     sync.Mutex
	loader CircuitFileLoader
	cfg    *ProverConfig

	r1cs constraint.ConstraintSystem
	pk   groth16.ProvingKey
	vk   groth16.VerifyingKey
}

// NewProver constructs a Prover. loader may be nil; in that case any proving
// call fails with ErrCircuitFilesUnavailable rather than panicking.
func NewProver(loader CircuitFileLoader, cfg *ProverConfig) *Prover {
	if cfg == nil {
		cfg = DefaultProverConfig()
	}
	return &Prover{loader: loader, cfg: cfg}
}

func (p *Prover) ensureLoaded(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.r1cs != nil && p.pk != nil && p.vk != nil {
		return nil
	}
	if p.loader == nil {
		return types.NewError(types.ErrCircuitFilesUnavailable, "prover has no CircuitFileLoader configured")
	}

	r1cs, err := p.loader.LoadR1CS(ctx)
	if err != nil {
		return types.WrapError(types.ErrCircuitFilesUnavailable, "loading R1CS", err)
	}
	pk, err := p.loader.LoadProvingKey(ctx)
	if err != nil {
		return types.WrapError(types.ErrCircuitFilesUnavailable, "loading proving key", err)
	}
	vk, err := p.loader.LoadVerifyingKey(ctx)
	if err != nil {
		return types.WrapError(types.ErrCircuitFilesUnavailable, "loading verifying key", err)
	}

	p.r1cs, p.pk, p.vk = r1cs, pk, vk
	return nil
}

// Proof is a generated Groth16 proof alongside the public witness it was
// proved against, serialized so a host application can submit them
// on-chain without depending on gnark's in-memory types.
type Proof struct {
	ProofBytes  []byte
	PublicBytes []byte
}

// withdrawalCircuit mirrors the Groth16 Input Record's signals as gnark
// variables. It is only ever used as a witness assignment against an
// externally-compiled R1CS; Define is never invoked (that already happened
// when the circuit was compiled to produce the loaded R1CS/keys) but gnark's
// witness construction still requires the struct to satisfy frontend.Circuit.
type withdrawalCircuit struct {
	WithdrawnValue frontend.Variable `gnark:",public"`
	StateRoot      frontend.Variable `gnark:",public"`
	ASPRoot        frontend.Variable `gnark:",public"`
	StateTreeDepth frontend.Variable `gnark:",public"`
	ASPTreeDepth   frontend.Variable `gnark:",public"`
	Context        frontend.Variable `gnark:",public"`
	StateIndex     frontend.Variable `gnark:",public"`
	ASPIndex       frontend.Variable `gnark:",public"`

	Label             frontend.Variable
	ExistingValue     frontend.Variable
	ExistingNullifier frontend.Variable
	ExistingSecret    frontend.Variable
	NewNullifier      frontend.Variable
	NewSecret         frontend.Variable
	RefundNullifier   frontend.Variable
	RefundSecret      frontend.Variable

	StateSiblings [types.Groth16SiblingsLen]frontend.Variable
	ASPSiblings   [types.Groth16SiblingsLen]frontend.Variable
}

func (c *withdrawalCircuit) Define(api frontend.API) error {
	return nil
}

func newWithdrawalAssignment(record types.Groth16InputRecord) *withdrawalCircuit {
	c := &withdrawalCircuit{
		WithdrawnValue:    record.WithdrawnValue,
		StateRoot:         record.StateRoot.BigInt(),
		ASPRoot:           record.ASPRoot.BigInt(),
		StateTreeDepth:    record.StateTreeDepth,
		ASPTreeDepth:      record.ASPTreeDepth,
		Context:           record.Context.BigInt(),
		StateIndex:        record.StateIndex,
		ASPIndex:          record.ASPIndex,
		Label:             record.Label.BigInt(),
		ExistingValue:     record.ExistingValue,
		ExistingNullifier: record.ExistingNullifier.BigInt(),
		ExistingSecret:    record.ExistingSecret.BigInt(),
		NewNullifier:      record.NewNullifier.BigInt(),
		NewSecret:         record.NewSecret.BigInt(),
	}

	if record.RefundNullifier != nil {
		c.RefundNullifier = record.RefundNullifier.BigInt()
	} else {
		c.RefundNullifier = 0
	}
	if record.RefundSecret != nil {
		c.RefundSecret = record.RefundSecret.BigInt()
	} else {
		c.RefundSecret = 0
	}

	for i := 0; i < types.Groth16SiblingsLen; i++ {
		c.StateSiblings[i] = record.StateSiblings[i].BigInt()
		c.ASPSiblings[i] = record.ASPSiblings[i].BigInt()
	}

	return c
}

// FullProve generates a Groth16 proof for record and immediately
// self-verifies it against the loaded verifying key. A self-verification
// failure is always fatal and is never retried with different parameters.
// It indicates the loaded circuit artifacts drifted from this SDK's input
// layout, not a transient condition.
func (p *Prover) FullProve(ctx context.Context, record types.Groth16InputRecord) (*Proof, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	assignment := newWithdrawalAssignment(record)
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, types.WrapError(types.ErrProofVerificationFailed, "building witness", err)
	}

	proof, err := groth16.Prove(p.r1cs, p.pk, witness)
	if err != nil {
		return nil, types.WrapError(types.ErrProofVerificationFailed, "generating proof", err)
	}

	publicWitness, err := witness.Public()
	if err != nil {
		return nil, types.WrapError(types.ErrProofVerificationFailed, "deriving public witness", err)
	}

	if err := groth16.Verify(proof, p.vk, publicWitness); err != nil {
		return nil, types.WrapError(types.ErrProofVerificationFailed, "proof failed self-verification", err)
	}

	var proofBuf, publicBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, types.WrapError(types.ErrProofVerificationFailed, "serializing proof", err)
	}
	if _, err := publicWitness.WriteTo(&publicBuf); err != nil {
		return nil, types.WrapError(types.ErrProofVerificationFailed, "serializing public witness", err)
	}

	return &Proof{ProofBytes: proofBuf.Bytes(), PublicBytes: publicBuf.Bytes()}, nil
}

// Verify independently checks a previously generated proof against the
// loaded verifying key, for callers that persisted a Proof and want to
// re-check it later without re-proving.
func (p *Prover) Verify(ctx context.Context, proof *Proof) error {
	if err := p.ensureLoaded(ctx); err != nil {
		return err
	}

	g16proof := groth16.NewProof(ecc.BN254)
	if _, err := g16proof.ReadFrom(bytes.NewReader(proof.ProofBytes)); err != nil {
		return types.WrapError(types.ErrProofVerificationFailed, "deserializing proof", err)
	}

	publicWitness, err := frontend.NewWitness(nil, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return types.WrapError(types.ErrProofVerificationFailed, "building public witness", err)
	}
	if _, err := publicWitness.ReadFrom(bytes.NewReader(proof.PublicBytes)); err != nil {
		return types.WrapError(types.ErrProofVerificationFailed, "deserializing public witness", err)
	}

	if err := groth16.Verify(g16proof, p.vk, publicWitness); err != nil {
		return types.WrapError(types.ErrProofVerificationFailed, "verification failed", err)
	}
	return nil
}
