package swap

import "fmt"

// ConfigurationError marks a missing mandatory parameter at advance
// time. Fatal: fails the swap.
type ConfigurationError struct {
	Param string
	SubTx SubTxId
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("swap: missing mandatory parameter %s (subtx %d)", e.Param, e.SubTx)
}

// BroadcastRejectedError marks a sendrawtransaction call that returned
// no txid. Fatal for the current subtx broadcast.
type BroadcastRejectedError struct {
	SubTx SubTxId
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("swap: broadcast of subtx %d rejected by node", e.SubTx)
}

// ConsensusMismatchError marks an on-chain observation that disagrees
// with the locally recomputed contract: wrong script, or an
// under-funded HTLC output. Fatal: abort without redeem/refund attempts.
type ConsensusMismatchError struct {
	Reason string
}

func (e *ConsensusMismatchError) Error() string {
	return "swap: consensus mismatch: " + e.Reason
}

// SigningFailureError marks a signrawtransaction reply with
// complete=false, or a failed local endorsement. Fatal.
type SigningFailureError struct {
	Reason string
}

func (e *SigningFailureError) Error() string {
	return "swap: signing failure: " + e.Reason
}
