package route

import (
	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

// SwapGroup is the composite account group name the programs use for a
// Raydium V4 swap.
const SwapGroup = "swapAccounts"

// SwapRoleOrder is the account order of the swap group. It is part of the
// programs' wire contract.
var SwapRoleOrder = []string{
	"ammProgram",
	"amm",
	"ammAuthority",
	"ammOpenOrders",
	"ammCoinVault",
	"ammPcVault",
	"marketProgram",
	"market",
	"marketBids",
	"marketAsks",
	"marketEventQueue",
	"marketCoinVault",
	"marketPcVault",
	"marketVaultSigner",
	"userTokenSource",
	"userTokenDestination",
	"userSourceOwner",
	"tokenProgram",
}

// SwapRoles maps every role of the swap group, prefixed with the group
// name, to its account.
func SwapRoles(d domain.PoolRouteDescriptor, source, destination, owner solana.PublicKey) map[string]solana.PublicKey {
	accounts := []solana.PublicKey{
		d.Program,
		d.Pool,
		d.Authority,
		d.OpenOrders,
		d.BaseVault,
		d.QuoteVault,
		d.MarketProgram,
		d.Market,
		d.MarketBids,
		d.MarketAsks,
		d.MarketEventQueue,
		d.MarketBaseVault,
		d.MarketQuoteVault,
		d.MarketVaultSigner,
		source,
		destination,
		owner,
		common.TokenProgramID,
	}
	roles := make(map[string]solana.PublicKey, len(accounts))
	for i, role := range SwapRoleOrder {
		roles[SwapGroup+"."+role] = accounts[i]
	}
	return roles
}

// SwapAccounts returns the 18 metas of the swap group in program order.
func SwapAccounts(d domain.PoolRouteDescriptor, source, destination, owner solana.PublicKey) []*solana.AccountMeta {
	roles := SwapRoles(d, source, destination, owner)
	metas := make([]*solana.AccountMeta, 0, len(SwapRoleOrder))
	for _, role := range SwapRoleOrder {
		key := roles[SwapGroup+"."+role]
		switch role {
		case "ammProgram", "ammAuthority", "marketProgram", "tokenProgram":
			metas = append(metas, solana.Meta(key))
		case "userSourceOwner":
			metas = append(metas, solana.Meta(key).WRITE().SIGNER())
		default:
			metas = append(metas, solana.Meta(key).WRITE())
		}
	}
	return metas
}

// LookupAddresses are the descriptor accounts worth packing into a lookup
// table.
func LookupAddresses(d domain.PoolRouteDescriptor) []solana.PublicKey {
	return []solana.PublicKey{
		d.Pool, d.Authority, d.OpenOrders, d.BaseVault, d.QuoteVault,
		d.Market, d.MarketBids, d.MarketAsks, d.MarketEventQueue,
		d.MarketBaseVault, d.MarketQuoteVault, d.MarketVaultSigner,
	}
}
