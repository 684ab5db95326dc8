package rpc

import (
	"strings"

	"github.com/veralabs/resonance/pkg/ledger"
)

// rejectionMarkers are node error substrings that mean the transaction was
// seen and refused, as opposed to the node being unreachable. Resubmitting
// the same payload will fail the same way, so these map to rejected rather
// than transient.
var rejectionMarkers = []string{
	"execution reverted",
	"revert",
	"nonce too low",
	"already known",
	"replacement transaction underpriced",
	"insufficient funds",
	"exceeds block gas limit",
	"intrinsic gas too low",
}

// classifySubmitError maps a SendTransaction error into the engine's failure
// taxonomy. Anything not recognizably a node-side rejection is left transient
// so the caller retries it.
func classifySubmitError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range rejectionMarkers {
		if strings.Contains(msg, marker) {
			return ledger.Rejected(op, err)
		}
	}
	return ledger.Transient(op, err)
}
