package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// codePreflightFailure is the JSON-RPC code of a failed preflight simulation.
const codePreflightFailure = -32002

// isAlreadyProcessed reports whether a broadcast failed only because the same
// transaction was already accepted. Nodes answer a replay with a preflight
// failure whose error is AlreadyProcessed; older nodes only say so in the
// message.
func isAlreadyProcessed(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == codePreflightFailure && mentionsAlreadyProcessed(fmt.Sprint(rpcErr.Data)) {
			return true
		}
		return mentionsAlreadyProcessed(rpcErr.Message)
	}
	return mentionsAlreadyProcessed(err.Error())
}

func mentionsAlreadyProcessed(s string) bool {
	return strings.Contains(s, "AlreadyProcessed") || strings.Contains(s, "already been processed")
}
