// Package pipeline compiles assembled plans, collects the co-signer's and the
// wallet's signatures, broadcasts and waits for confirmation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/metrics"
)

// Blockhashes hands out recent blockhashes and the current block height.
// *blockchain.BlockhashCacheService satisfies it.
type Blockhashes interface {
	GetBlockhash(ctx context.Context) (solana.Hash, uint64, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

var _ Blockhashes = (*blockchain.BlockhashCacheService)(nil)

type Pipeline struct {
	client       blockchain.LedgerRPC
	blockhashes  Blockhashes
	cosigner     CoSigner
	pollInterval time.Duration
}

func New(client blockchain.LedgerRPC, blockhashes Blockhashes, cosigner CoSigner, pollInterval time.Duration) *Pipeline {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Pipeline{
		client:       client,
		blockhashes:  blockhashes,
		cosigner:     cosigner,
		pollInterval: pollInterval,
	}
}

// Direct runs instructions the session signs alone.
func (p *Pipeline) Direct(ctx context.Context, session *domain.Session, kind domain.OperationKind, instructions []solana.Instruction) (domain.Receipt, error) {
	return p.Run(ctx, session, &domain.Plan{Kind: kind, Instructions: instructions})
}

// Run drives plan from Built to a terminal state. The returned receipt always
// reflects the last state reached; it carries the signature once the wallet
// has signed, also when an error is returned.
func (p *Pipeline) Run(ctx context.Context, session *domain.Session, plan *domain.Plan) (domain.Receipt, error) {
	rec := domain.Receipt{Kind: plan.Kind, Target: plan.Target}
	if !session.Connected() {
		return rec, common.NewOperationError(string(plan.Kind), nil, common.ErrUnauthenticated)
	}
	p.transition(&rec, domain.StateBuilt)

	compiled, err := p.Compile(ctx, session, plan)
	if err != nil {
		return rec, fail(&rec, plan, err)
	}
	p.transition(&rec, domain.StateCompiled)

	tx := compiled.Tx
	if plan.CoSigned() {
		p.transition(&rec, domain.StateSentForCoSign)
		if tx, err = p.coSign(ctx, session, plan, compiled); err != nil {
			p.transition(&rec, domain.StateRejectedByCoSigner)
			return rec, fail(&rec, plan, err)
		}
		p.transition(&rec, domain.StateCoSigned)
	}

	sig, err := signInto(tx, compiled.Message, *session.Key)
	if err != nil {
		return rec, fail(&rec, plan, err)
	}
	rec.Signature = sig.String()
	p.transition(&rec, domain.StateClientSigned)

	if err := p.send(ctx, tx); err != nil {
		switch {
		case errors.Is(err, common.ErrDuplicateSubmission):
			rec.Duplicate = true
			metrics.RecordSubmission("duplicate")
			log.Info().Str("signature", rec.Signature).Str("op", string(plan.Kind)).Msg("[Pipeline] transaction already processed, confirming prior submission")
		case ctx.Err() != nil:
			// the broadcast may or may not have left; only the signature can tell
			rec.State = domain.StateSubmitted
			rec.Abandoned = true
			return rec, nil
		default:
			metrics.RecordSubmission("failed")
			p.transition(&rec, domain.StateSubmissionFailed)
			return rec, fail(&rec, plan, err)
		}
	}
	p.transition(&rec, domain.StateSubmitted)

	return p.confirm(ctx, plan, &rec, sig, compiled.LastValidBlockHeight)
}

// Compile binds the plan to a fresh blockhash with the session as fee payer.
// Every required signature slot is left zeroed.
func (p *Pipeline) Compile(ctx context.Context, session *domain.Session, plan *domain.Plan) (*Compiled, error) {
	if len(plan.Instructions) == 0 {
		return nil, errors.New("plan has no instructions")
	}
	hash, lastValid, err := p.blockhashes.GetBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	opts := []solana.TransactionOption{solana.TransactionPayer(session.PublicKey())}
	if tables := plan.AddressTables(); tables != nil {
		opts = append(opts, solana.TransactionAddressTables(tables))
	}
	tx, err := solana.NewTransaction(plan.Instructions, hash, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile message: %w", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	tx.Signatures = make([]solana.Signature, len(tx.Message.Signers()))

	return &Compiled{Tx: tx, Message: msg, LastValidBlockHeight: lastValid}, nil
}

func (p *Pipeline) coSign(ctx context.Context, session *domain.Session, plan *domain.Plan, compiled *Compiled) (*solana.Transaction, error) {
	envelope, err := compiled.Envelope()
	if err != nil {
		return nil, err
	}
	signed, err := p.cosigner.CoSign(ctx, plan.Kind.CoSignRoute(), CoSignRequest{
		Tx:           envelope,
		Expect:       plan.Expectation,
		PurchaseLink: plan.PurchaseLink,
	})
	if err != nil {
		return nil, err
	}
	tx, err := decodeEnvelope(signed)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable transaction: %v", common.ErrEnvelopeMismatch, err)
	}
	if err := verifyEnvelope(compiled, tx, session.PublicKey()); err != nil {
		return nil, err
	}
	if !tx.IsSigner(plan.Counterparty) {
		return nil, fmt.Errorf("%w: %s is not a signer", common.ErrEnvelopeMismatch, plan.Counterparty)
	}
	return tx, nil
}

func (p *Pipeline) send(ctx context.Context, tx *solana.Transaction) error {
	_, err := p.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err == nil {
		return nil
	}
	if isAlreadyProcessed(err) {
		return fmt.Errorf("%w: %v", common.ErrDuplicateSubmission, err)
	}
	return fmt.Errorf("%w: %v", common.ErrSubmissionFailed, err)
}

// confirm polls the signature until it lands, fails on chain or outlives its
// blockhash.
func (p *Pipeline) confirm(ctx context.Context, plan *domain.Plan, rec *domain.Receipt, sig solana.Signature, lastValid uint64) (domain.Receipt, error) {
	start := time.Now()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		res, err := p.client.GetSignatureStatuses(ctx, false, sig)
		if err == nil && res != nil && len(res.Value) == 1 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				metrics.RecordSubmission("failed")
				p.transition(rec, domain.StateSubmissionFailed)
				return *rec, fail(rec, plan, fmt.Errorf("%w: %v", common.ErrSubmissionFailed, status.Err))
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				rec.Slot = status.Slot
				if !rec.Duplicate {
					metrics.RecordSubmission("confirmed")
				}
				metrics.ConfirmationDuration.Observe(time.Since(start).Seconds())
				p.transition(rec, domain.StateConfirmed)
				return *rec, nil
			}
		} else if err != nil && ctx.Err() == nil {
			log.Debug().Err(err).Str("signature", rec.Signature).Msg("[Pipeline] status poll failed")
		}

		height, err := p.blockhashes.BlockHeight(ctx)
		if err == nil && height > lastValid {
			metrics.RecordSubmission("timeout")
			p.transition(rec, domain.StateConfirmationTimeout)
			return *rec, fail(rec, plan, common.ErrConfirmationTimeout)
		}

		select {
		case <-ctx.Done():
			rec.Abandoned = true
			log.Info().Str("signature", rec.Signature).Msg("[Pipeline] confirmation abandoned by caller")
			return *rec, nil
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) transition(rec *domain.Receipt, state domain.SubmissionState) {
	rec.State = state
	metrics.RecordTransition(string(rec.Kind), string(state))
	log.Debug().
		Str("op", string(rec.Kind)).
		Str("state", string(state)).
		Str("signature", rec.Signature).
		Msg("[Pipeline] transition")
}

// fail records err on the receipt and wraps it with the operation context.
func fail(rec *domain.Receipt, plan *domain.Plan, err error) error {
	var oe *common.OperationError
	if !errors.As(err, &oe) {
		var target fmt.Stringer
		if !plan.Target.IsZero() {
			target = plan.Target
		}
		err = common.NewOperationError(string(plan.Kind), target, err)
	}
	rec.Err = common.ToHTTPError(err).Message
	return err
}
