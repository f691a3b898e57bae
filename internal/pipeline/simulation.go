package pipeline

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/metrics"
)

// Simulate dry-runs plan signed by the session alone. Co-signer slots stay
// empty, so signatures are not verified.
func (p *Pipeline) Simulate(ctx context.Context, session *domain.Session, plan *domain.Plan) (*domain.SimulationResult, error) {
	if !session.Connected() {
		return nil, common.ErrUnauthenticated
	}
	compiled, err := p.Compile(ctx, session, plan)
	if err != nil {
		return nil, err
	}
	tx := compiled.Tx
	if _, err := signInto(tx, compiled.Message, *session.Key); err != nil {
		return nil, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := &domain.SimulationResult{TxSize: len(raw)}
	result, err := p.client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		metrics.SimulationRequests.WithLabelValues("error").Inc()
		out.Err = fmt.Sprintf("simulation failed: %v", err)
		return out, nil
	}

	out.Success = result.Value.Err == nil
	out.Logs = result.Value.Logs
	if result.Value.UnitsConsumed != nil {
		out.UnitsConsumed = *result.Value.UnitsConsumed
		out.UnitEstimate = out.UnitsConsumed + out.UnitsConsumed*20/100
		metrics.ComputeUnits.Observe(float64(out.UnitsConsumed))
	}
	if result.Value.Err != nil {
		out.Err = fmt.Sprintf("%v", result.Value.Err)
		metrics.SimulationRequests.WithLabelValues("failed").Inc()
	} else {
		metrics.SimulationRequests.WithLabelValues("ok").Inc()
	}
	return out, nil
}
