package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain"
	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain/blockchaintest"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

var testProgram = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func newSession(t *testing.T) *domain.Session {
	k := newKey(t)
	return &domain.Session{Key: &k}
}

func plan(user solana.PublicKey, counterparty solana.PublicKey) *domain.Plan {
	accounts := solana.AccountMetaSlice{solana.NewAccountMeta(user, true, true)}
	p := &domain.Plan{Kind: domain.OpClaimRewards, Target: testProgram}
	if !counterparty.IsZero() {
		accounts = append(accounts, solana.NewAccountMeta(counterparty, false, true))
		p.Kind = domain.OpPurchaseShares
		p.Counterparty = counterparty
		p.Expectation = &domain.Expectation{
			ProgramID:     testProgram.String(),
			User:          user.String(),
			ProjectSigner: counterparty.String(),
			PhaseID:       domain.U64(3),
		}
		p.PurchaseLink = "https://example.org/r/abc"
	}
	p.Instructions = []solana.Instruction{solana.NewInstruction(testProgram, accounts, []byte{1, 2, 3})}
	return p
}

func newPipeline(ledger blockchain.LedgerRPC, cosigner CoSigner) *Pipeline {
	return New(ledger, blockchain.NewBlockhashCache(ledger, nil), cosigner, 5*time.Millisecond)
}

func confirmOnSend(l *blockchaintest.Ledger) {
	l.OnSend = func(tx *solana.Transaction) { l.Confirm(tx.Signatures[0]) }
}

// backend is an httptest co-signer; mutate may alter the transaction before
// it is signed.
type backend struct {
	mu       sync.Mutex
	key      solana.PrivateKey
	requests []CoSignRequest
	paths    []string
	mutate   func(tx *solana.Transaction)
	unsigned bool
	reject   bool
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req CoSignRequest
		require.NoError(t, sonic.Unmarshal(raw, &req))

		b.mu.Lock()
		b.requests = append(b.requests, req)
		b.paths = append(b.paths, r.URL.Path)
		b.mu.Unlock()

		if b.reject {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"message":"phase price table row 7 mismatch"}`))
			return
		}

		tx, err := decodeEnvelope(req.Tx)
		require.NoError(t, err)
		if b.mutate != nil {
			b.mutate(tx)
		}
		if !b.unsigned {
			msg, err := tx.Message.MarshalBinary()
			require.NoError(t, err)
			_, err = signInto(tx, msg, b.key)
			require.NoError(t, err)
		}
		out, err := tx.MarshalBinary()
		require.NoError(t, err)
		body, err := sonic.Marshal(map[string]any{
			"code": 200,
			"data": map[string]string{"signature": base64.StdEncoding.EncodeToString(out)},
		})
		require.NoError(t, err)
		_, _ = w.Write(body)
	}
}

func startBackend(t *testing.T, b *backend) *HTTPCoSigner {
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	return NewHTTPCoSigner(srv.URL, 2*time.Second, 100)
}

func TestRunClientSignedConfirms(t *testing.T) {
	ledger := blockchaintest.New()
	confirmOnSend(ledger)
	session := newSession(t)
	p := newPipeline(ledger, nil)

	rec, err := p.Run(context.Background(), session, plan(session.PublicKey(), solana.PublicKey{}))
	require.NoError(t, err)
	require.Equal(t, domain.StateConfirmed, rec.State)
	require.Equal(t, ledger.Slot, rec.Slot)
	require.Equal(t, 1, ledger.SentCount())
	require.Equal(t, ledger.Sent[0].Signatures[0].String(), rec.Signature)
	require.False(t, rec.Duplicate)
}

func TestRunCoSignedCarriesBothSignatures(t *testing.T) {
	ledger := blockchaintest.New()
	confirmOnSend(ledger)
	session := newSession(t)
	b := &backend{key: newKey(t)}
	p := newPipeline(ledger, startBackend(t, b))
	pl := plan(session.PublicKey(), b.key.PublicKey())

	rec, err := p.Run(context.Background(), session, pl)
	require.NoError(t, err)
	require.Equal(t, domain.StateConfirmed, rec.State)

	require.Len(t, b.requests, 1)
	require.Equal(t, "/v1/order/create", b.paths[0])
	require.Equal(t, pl.Expectation.ProgramID, b.requests[0].Expect.ProgramID)
	require.Equal(t, uint64(3), *b.requests[0].Expect.PhaseID)
	require.Equal(t, pl.PurchaseLink, b.requests[0].PurchaseLink)

	sent := ledger.Sent[0]
	require.Len(t, sent.Signatures, 2)
	msg, err := sent.Message.MarshalBinary()
	require.NoError(t, err)
	require.True(t, sent.Signatures[0].Verify(session.PublicKey(), msg))
	require.True(t, sent.Signatures[1].Verify(b.key.PublicKey(), msg))
}

func TestRunRejectsAlteredEnvelope(t *testing.T) {
	ledger := blockchaintest.New()
	session := newSession(t)
	b := &backend{key: newKey(t), mutate: func(tx *solana.Transaction) {
		tx.Message.RecentBlockhash = solana.Hash{9, 9, 9}
	}}
	p := newPipeline(ledger, startBackend(t, b))

	rec, err := p.Run(context.Background(), session, plan(session.PublicKey(), b.key.PublicKey()))
	require.ErrorIs(t, err, common.ErrEnvelopeMismatch)
	require.Equal(t, domain.StateRejectedByCoSigner, rec.State)
	require.Empty(t, rec.Signature)
	require.Zero(t, ledger.SentCount())
}

func TestRunRejectsMissingCounterpartySignature(t *testing.T) {
	ledger := blockchaintest.New()
	session := newSession(t)
	b := &backend{key: newKey(t), unsigned: true}
	p := newPipeline(ledger, startBackend(t, b))

	_, err := p.Run(context.Background(), session, plan(session.PublicKey(), b.key.PublicKey()))
	require.ErrorIs(t, err, common.ErrEnvelopeMismatch)
	require.Zero(t, ledger.SentCount())
}

func TestRunCoSignerRejectionHidesBackendMessage(t *testing.T) {
	ledger := blockchaintest.New()
	session := newSession(t)
	b := &backend{key: newKey(t), reject: true}
	p := newPipeline(ledger, startBackend(t, b))

	rec, err := p.Run(context.Background(), session, plan(session.PublicKey(), b.key.PublicKey()))
	require.ErrorIs(t, err, common.ErrRejectedByCoSigner)
	require.Equal(t, domain.StateRejectedByCoSigner, rec.State)
	require.NotContains(t, rec.Err, "price table")
	require.NotContains(t, common.ToHTTPError(err).Message, "price table")
	require.Zero(t, ledger.SentCount())
}

// replayLedger answers every broadcast as a replay of an already landed
// transaction.
type replayLedger struct {
	*blockchaintest.Ledger
	sends int
}

func (r *replayLedger) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	r.sends++
	r.Confirm(tx.Signatures[0])
	return solana.Signature{}, &jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: This transaction has already been processed",
		Data:    map[string]any{"err": "AlreadyProcessed"},
	}
}

func TestRunDuplicateResolvesToConfirmation(t *testing.T) {
	ledger := &replayLedger{Ledger: blockchaintest.New()}
	session := newSession(t)
	p := newPipeline(ledger, nil)

	rec, err := p.Run(context.Background(), session, plan(session.PublicKey(), solana.PublicKey{}))
	require.NoError(t, err)
	require.True(t, rec.Duplicate)
	require.Equal(t, domain.StateConfirmed, rec.State)
	require.NotEmpty(t, rec.Signature)
	require.Equal(t, 1, ledger.sends)
}

func TestRunSubmissionFailure(t *testing.T) {
	ledger := blockchaintest.New()
	ledger.SendErr = []error{&jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: insufficient funds for rent"}}
	session := newSession(t)
	p := newPipeline(ledger, nil)

	rec, err := p.Run(context.Background(), session, plan(session.PublicKey(), solana.PublicKey{}))
	require.ErrorIs(t, err, common.ErrSubmissionFailed)
	require.Equal(t, domain.StateSubmissionFailed, rec.State)
	require.NotEmpty(t, rec.Signature)
}

func TestRunOnChainFailure(t *testing.T) {
	ledger := blockchaintest.New()
	ledger.OnSend = func(tx *solana.Transaction) {
		ledger.Statuses[tx.Signatures[0]] = &rpc.SignatureStatusesResult{
			Slot: ledger.Slot,
			Err:  map[string]any{"InstructionError": []any{0, "Custom"}},
		}
	}
	session := newSession(t)
	p := newPipeline(ledger, nil)

	rec, err := p.Run(context.Background(), session, plan(session.PublicKey(), solana.PublicKey{}))
	require.ErrorIs(t, err, common.ErrSubmissionFailed)
	require.Equal(t, domain.StateSubmissionFailed, rec.State)
}

func TestRunConfirmationTimeoutKeepsSignature(t *testing.T) {
	ledger := blockchaintest.New()
	// the fake hands out blockhashes valid until BlockHeight+150
	ledger.OnSend = func(*solana.Transaction) { ledger.SetBlockHeight(ledger.BlockHeight + 151) }
	session := newSession(t)
	p := newPipeline(ledger, nil)

	rec, err := p.Run(context.Background(), session, plan(session.PublicKey(), solana.PublicKey{}))
	require.ErrorIs(t, err, common.ErrConfirmationTimeout)
	require.True(t, common.IsRetryable(err))
	require.Equal(t, domain.StateConfirmationTimeout, rec.State)
	require.NotEmpty(t, rec.Signature)
	require.Equal(t, 1, ledger.SentCount())
}

func TestRunAbandonedAfterBroadcast(t *testing.T) {
	ledger := blockchaintest.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger.OnSend = func(*solana.Transaction) { cancel() }
	session := newSession(t)
	p := newPipeline(ledger, nil)

	rec, err := p.Run(ctx, session, plan(session.PublicKey(), solana.PublicKey{}))
	require.NoError(t, err)
	require.True(t, rec.Abandoned)
	require.Equal(t, domain.StateSubmitted, rec.State)
	require.NotEmpty(t, rec.Signature)
}

func TestRunNeedsSession(t *testing.T) {
	ledger := blockchaintest.New()
	p := newPipeline(ledger, nil)

	_, err := p.Run(context.Background(), &domain.Session{}, plan(solana.PublicKey{1}, solana.PublicKey{}))
	require.ErrorIs(t, err, common.ErrUnauthenticated)
	require.Zero(t, ledger.SentCount())
}

func TestDirectImplementsSubmitter(t *testing.T) {
	ledger := blockchaintest.New()
	confirmOnSend(ledger)
	session := newSession(t)
	p := newPipeline(ledger, nil)

	ix := solana.NewInstruction(testProgram, solana.AccountMetaSlice{solana.NewAccountMeta(session.PublicKey(), true, true)}, nil)
	rec, err := p.Direct(context.Background(), session, domain.OpLookupTable, []solana.Instruction{ix})
	require.NoError(t, err)
	require.Equal(t, domain.OpLookupTable, rec.Kind)
	require.Equal(t, domain.StateConfirmed, rec.State)
}

func TestSimulate(t *testing.T) {
	ledger := blockchaintest.New()
	session := newSession(t)
	p := newPipeline(ledger, nil)

	res, err := p.Simulate(context.Background(), session, plan(session.PublicKey(), solana.PublicKey{}))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, uint64(42_000), res.UnitsConsumed)
	require.Equal(t, uint64(50_400), res.UnitEstimate)
	require.Positive(t, res.TxSize)
	require.Zero(t, ledger.SentCount())
}

func TestCompileLeavesSignatureSlots(t *testing.T) {
	ledger := blockchaintest.New()
	session := newSession(t)
	other := newKey(t).PublicKey()
	p := newPipeline(ledger, nil)

	c, err := p.Compile(context.Background(), session, plan(session.PublicKey(), other))
	require.NoError(t, err)
	require.Len(t, c.Tx.Signatures, 2)
	require.Equal(t, uint64(650), c.LastValidBlockHeight)
	require.Equal(t, ledger.Blockhash, c.Tx.Message.RecentBlockhash)

	env, err := c.Envelope()
	require.NoError(t, err)
	back, err := decodeEnvelope(env)
	require.NoError(t, err)
	msg, err := back.Message.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, c.Message, msg)
}

func TestIsAlreadyProcessed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"preflight data", &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed", Data: map[string]any{"err": "AlreadyProcessed"}}, true},
		{"legacy message", errors.New("This transaction has already been processed"), true},
		{"wrapped", errors.Join(errors.New("send"), &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: This transaction has already been processed"}), true},
		{"other preflight failure", &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}, false},
		{"transport", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isAlreadyProcessed(tt.err))
		})
	}
}

func TestHTTPCoSignerWithoutURL(t *testing.T) {
	_, err := NewHTTPCoSigner("", time.Second, 1).CoSign(context.Background(), "/v1/order/create", CoSignRequest{})
	require.ErrorIs(t, err, common.ErrRejectedByCoSigner)
}
