package blockchain

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	pb "github.com/andrew-solarstorm/yellowstone-grpc-client-go/proto"
	container "github.com/thehyperflames/dicontainer-go"
	"github.com/thehyperflames/yellowstone"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/config"
	"github.com/hxuan190/ledger-orchestrator/internal/metrics"
)

const BLOCKHASH_CACHE_SERVICE = "cache-blockhash-svc"

// maxBlockhashAge is how long a streamed blockhash is served without asking the RPC node.
const maxBlockhashAge = 2 * time.Second

type CachedBlockhash struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	BlockHeight          uint64
	Slot                 uint64
	UpdatedAt            time.Time
}

type BlockhashCacheService struct {
	container.BaseDIInstance

	mu      sync.RWMutex
	current *CachedBlockhash
	ySvc    *yellowstone.Service
	client  LedgerRPC
	subID   string
}

// NewBlockhashCache builds a cache outside the container. A nil stream
// leaves the cache RPC-driven.
func NewBlockhashCache(client LedgerRPC, stream *yellowstone.Service) *BlockhashCacheService {
	return &BlockhashCacheService{client: client, ySvc: stream}
}

func (svc *BlockhashCacheService) ID() string {
	return BLOCKHASH_CACHE_SERVICE
}

func (svc *BlockhashCacheService) Configure(c container.IContainer) error {
	svc.ySvc = c.Instance(yellowstone.YELLOWSTONE_SERVICE).(*yellowstone.Service)
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)

	svc.client = NewClient(rpcConfig.RPCUrl, rpcConfig.Timeout)
	return nil
}

func (svc *BlockhashCacheService) Start() error {
	ctx := context.Background()
	if err := svc.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("[BlockhashCacheService] failed to fetch initial blockhash, will retry on first request")
	}

	if svc.ySvc == nil {
		return nil
	}
	subID, err := svc.ySvc.SubscribeBlockMeta(svc.handleBlockMeta)
	if err != nil {
		log.Error().Err(err).Msg("[BlockhashCacheService] failed to subscribe to block meta")
		return err
	}
	svc.subID = subID
	log.Info().Str("subID", subID).Msg("[BlockhashCacheService] subscribed to block meta for blockhash updates")

	return nil
}

func (svc *BlockhashCacheService) Stop() error {
	if svc.subID != "" && svc.ySvc != nil {
		return svc.ySvc.Unsubscribe(svc.subID)
	}
	return nil
}

func (svc *BlockhashCacheService) refresh(ctx context.Context) error {
	res, err := svc.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return err
	}

	next := &CachedBlockhash{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
		Slot:                 res.Context.Slot,
		UpdatedAt:            time.Now(),
	}
	if res.Value.LastValidBlockHeight >= common.BlockhashValidity {
		next.BlockHeight = res.Value.LastValidBlockHeight - common.BlockhashValidity
	}
	svc.store(next)

	log.Debug().
		Str("blockhash", res.Value.Blockhash.String()).
		Uint64("slot", res.Context.Slot).
		Msg("[BlockhashCacheService] refreshed blockhash")

	return nil
}

func (svc *BlockhashCacheService) store(next *CachedBlockhash) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	// the stream and the RPC path race; never go backwards
	if svc.current != nil && svc.current.Slot > next.Slot {
		return
	}
	svc.current = next
}

func (svc *BlockhashCacheService) handleBlockMeta(update *pb.SubscribeUpdate) error {
	blockMeta := update.GetBlockMeta()
	if blockMeta == nil {
		return nil
	}

	blockhashStr := blockMeta.GetBlockhash()
	if blockhashStr == "" {
		return nil
	}

	blockhash, err := solana.HashFromBase58(blockhashStr)
	if err != nil {
		return nil
	}

	var blockHeight uint64
	if bh := blockMeta.GetBlockHeight(); bh != nil {
		blockHeight = bh.GetBlockHeight()
	}
	if blockHeight == 0 {
		return nil
	}

	svc.store(&CachedBlockhash{
		Blockhash:            blockhash,
		LastValidBlockHeight: blockHeight + common.BlockhashValidity,
		BlockHeight:          blockHeight,
		Slot:                 blockMeta.GetSlot(),
		UpdatedAt:            time.Now(),
	})
	return nil
}

// GetBlockhash returns a recent blockhash and the last block height at which
// a message compiled against it can still land.
func (svc *BlockhashCacheService) GetBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	svc.mu.RLock()
	cached := svc.current
	svc.mu.RUnlock()

	if cached != nil && time.Since(cached.UpdatedAt) < maxBlockhashAge {
		metrics.BlockhashAge.Set(time.Since(cached.UpdatedAt).Seconds())
		return cached.Blockhash, cached.LastValidBlockHeight, nil
	}

	if err := svc.refresh(ctx); err != nil {
		if cached != nil {
			log.Warn().Err(err).Msg("[BlockhashCacheService] refresh failed, serving cached blockhash")
			return cached.Blockhash, cached.LastValidBlockHeight, nil
		}
		return solana.Hash{}, 0, err
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.current.Blockhash, svc.current.LastValidBlockHeight, nil
}

// BlockHeight reads the current confirmed block height from the node. The
// confirmation loop compares it with a blockhash's last valid height.
func (svc *BlockhashCacheService) BlockHeight(ctx context.Context) (uint64, error) {
	return svc.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
}
