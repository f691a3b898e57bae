package domain

import (
	"encoding/json"

	"github.com/gagliardetto/solana-go"
)

type OperationKind string

const (
	OpPurchaseShares        OperationKind = "purchase-shares"
	OpMintViaNFTPath        OperationKind = "mint-via-nft-path"
	OpClaimRewards          OperationKind = "claim-rewards"
	OpAddStake              OperationKind = "add-stake"
	OpCreateVestingSchedule OperationKind = "create-vesting-schedule"
	OpClaimVested           OperationKind = "claim-vested"
	OpClaimPurchaseTokens   OperationKind = "claim-purchase-tokens"
	OpCreatePhase           OperationKind = "create-phase"
	OpStakeLP               OperationKind = "stake-lp"
	OpClaimStakingRewards   OperationKind = "claim-staking-rewards"
	OpCancelStaking         OperationKind = "cancel-staking"
	OpInitializeStakingUser OperationKind = "initialize-staking-user"
	OpCancelVesting         OperationKind = "cancel-vesting"

	// OpLookupTable covers the lookup-table manager's own transactions.
	OpLookupTable OperationKind = "lookup-table"
)

// CoSignRoute is the backend path that counter-signs an operation, empty when
// the user signs alone.
func (k OperationKind) CoSignRoute() string {
	switch k {
	case OpPurchaseShares:
		return "/v1/order/create"
	case OpAddStake:
		return "/v1/addstaking/sign"
	}
	return ""
}

// Expectation is the semantic summary the co-signer checks the envelope
// against. Field names follow the backend's request body.
type Expectation struct {
	ProgramID      string  `json:"program_id"`
	User           string  `json:"user"`
	ProjectSigner  string  `json:"project_signer"`
	PhaseID        *uint64 `json:"phase_id,omitempty"`
	PurchaseID     *uint64 `json:"purchase_id,omitempty"`
	SharesToBuy    *uint64 `json:"shares_to_buy,omitempty"`
	OrderInfoIndex *uint64 `json:"order_info_index,omitempty"`
	// Price is forwarded as the decimal the caller supplied.
	Price json.Number `json:"price,omitempty"`
}

func U64(v uint64) *uint64 { return &v }

// Plan is an assembled, uncompiled operation: the ordered instructions plus
// what the pipeline needs to compile, co-sign and confirm it.
type Plan struct {
	Kind         OperationKind
	Instructions []solana.Instruction
	// LookupTable is zero when the message is compiled without a table.
	LookupTable solana.PublicKey
	TableKeys   solana.PublicKeySlice
	Expectation *Expectation
	// PurchaseLink is the referral link sent next to the expectation.
	PurchaseLink string
	// Counterparty is the co-signer key that must sign, zero when none.
	Counterparty solana.PublicKey
	// Target is the principal record the operation writes.
	Target solana.PublicKey
}

func (p *Plan) CoSigned() bool {
	return !p.Counterparty.IsZero()
}

func (p *Plan) AddressTables() map[solana.PublicKey]solana.PublicKeySlice {
	if p.LookupTable.IsZero() {
		return nil
	}
	return map[solana.PublicKey]solana.PublicKeySlice{p.LookupTable: p.TableKeys}
}

type SubmissionState string

const (
	StateBuilt         SubmissionState = "built"
	StateCompiled      SubmissionState = "compiled"
	StateSentForCoSign SubmissionState = "sent-for-co-sign"
	StateCoSigned      SubmissionState = "co-signed"
	StateClientSigned  SubmissionState = "client-signed"
	StateSubmitted     SubmissionState = "submitted"
	StateConfirmed     SubmissionState = "confirmed"

	StateRejectedByCoSigner  SubmissionState = "rejected-by-co-signer"
	StateSubmissionFailed    SubmissionState = "submission-failed"
	StateConfirmationTimeout SubmissionState = "confirmation-timeout"
)

// Terminal reports whether no further transition follows s.
func (s SubmissionState) Terminal() bool {
	switch s {
	case StateConfirmed, StateRejectedByCoSigner, StateSubmissionFailed, StateConfirmationTimeout:
		return true
	}
	return false
}

// Receipt is the outcome of a submission. Signature is set from the moment
// the client signature exists, so a timed out or abandoned submission can
// still be looked up.
type Receipt struct {
	Kind      OperationKind    `json:"kind"`
	Signature string           `json:"signature,omitempty"`
	State     SubmissionState  `json:"state"`
	Slot      uint64           `json:"slot,omitempty"`
	Target    solana.PublicKey `json:"target"`
	Duplicate bool             `json:"duplicate,omitempty"`
	Abandoned bool             `json:"abandoned,omitempty"`
	Err       string           `json:"error,omitempty"`
}

// SimulationResult reports a dry run of an assembled transaction.
type SimulationResult struct {
	Success       bool   `json:"success"`
	UnitsConsumed uint64 `json:"unitsConsumed"`
	// UnitEstimate is UnitsConsumed plus headroom, a fit compute unit limit.
	UnitEstimate uint64   `json:"unitEstimate,omitempty"`
	Logs         []string `json:"logs,omitempty"`
	Err          string   `json:"error,omitempty"`
	TxSize       int      `json:"txSize"`
}
