package http

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/ledger-orchestrator/internal/http/httputil"
)

// pathKey parses the path parameter name as an address, answering 400 when
// it is not one.
func pathKey(c *gin.Context, name string) (solana.PublicKey, bool) {
	k, err := solana.PublicKeyFromBase58(c.Param(name))
	if err != nil {
		httputil.HandleBadRequest(c, "invalid "+name+" address")
		return solana.PublicKey{}, false
	}
	return k, true
}

// queryKey is pathKey for an optional query parameter; absent yields zero.
func queryKey(c *gin.Context, name string) (solana.PublicKey, bool) {
	raw := c.Query(name)
	if raw == "" {
		return solana.PublicKey{}, true
	}
	k, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		httputil.HandleBadRequest(c, "invalid "+name+" address")
		return solana.PublicKey{}, false
	}
	return k, true
}

func queryLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
