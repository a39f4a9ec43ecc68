// Package swap implements the Bitcoin-side driver of a BEAM↔Bitcoin
// atomic swap: the HTLC script, the lock/redeem/refund sub-transaction
// state machines, and the RPC/parameter-store orchestration that ties
// them together. This is the core of btcswap.
package swap

import "github.com/beam-mw/btcswap/params"

// Protocol constants. Kept as named constants rather than buried
// literals.
const (
	// BTCLockTimeSec is the swap's refund window: 48 hours.
	BTCLockTimeSec = 2 * 24 * 3600

	// BTCMinTxConfirmations is the confirmation depth required before
	// the lock output is considered final.
	BTCMinTxConfirmations = 6

	// SatoshiPerBitcoin converts BTC amounts (as accepted by
	// createrawtransaction) to satoshis.
	SatoshiPerBitcoin = 100_000_000

	// maxInputSequence is the wire package's default max sequence
	// number; withdraw inputs use maxInputSequence-1 so the node will
	// still honor an nLockTime set on the transaction.
	maxInputSequence = 0xffffffff
)

// SwapRole captures the two independent booleans that determine a
// party's position in the HTLC script and in the redeem/refund paths.
type SwapRole struct {
	// IsInitiator is true for the party that chose the secret and
	// published its hash to both chains.
	IsInitiator bool
	// IsBtcOwner is true for the party whose funds collateralize the
	// Bitcoin side (the LOCK_TX funder).
	IsBtcOwner bool
}

// SubTxId identifies one of the swap's logical Bitcoin sub-transactions.
type SubTxId params.SubTx

const (
	// LockTx funds the HTLC output.
	LockTx SubTxId = iota + 1
	// RefundTx reclaims the HTLC output after the locktime.
	RefundTx
	// RedeemTx claims the HTLC output with the preimage.
	RedeemTx
	// BeamRedeemTx is not a Bitcoin transaction; it is the namespace
	// under which the preimage parameter is shared with the
	// native-chain side of the swap.
	BeamRedeemTx
)

func (id SubTxId) paramSubTx() params.SubTx { return params.SubTx(id) }

// SwapTxState is the per-subtx lifecycle marker.
type SwapTxState uint32

const (
	// StateInitial means no work has started on this subtx.
	StateInitial SwapTxState = iota
	// StateCreatingTx means an RPC is outstanding, or the partial
	// artifact is not yet complete.
	StateCreatingTx
	// StateConstructed means a signed raw transaction is available
	// for broadcast.
	StateConstructed
)

// TxParameterId enumerates the swap's persisted parameter keys.
type TxParameterId params.Key

const (
	// ParamCreateTime is the swap creation moment; global scope.
	ParamCreateTime TxParameterId = iota + 1
	// ParamAtomicSwapAmount is the BTC side amount, in satoshis; global scope.
	ParamAtomicSwapAmount
	// ParamAtomicSwapAddress is our BTC address; global scope, set once.
	ParamAtomicSwapAddress
	// ParamAtomicSwapPeerAddress is the peer's BTC address; global scope.
	ParamAtomicSwapPeerAddress
	// ParamAtomicSwapExternalLockTime is the absolute CLTV locktime; global scope.
	ParamAtomicSwapExternalLockTime
	// ParamPreImage is the initiator's secret, scoped to BeamRedeemTx.
	ParamPreImage
	// ParamPeerLockImage is the counterparty's commitment, scoped to BeamRedeemTx.
	ParamPeerLockImage
	// ParamAtomicSwapExternalTxID is the on-chain txid, per-subtx scope.
	ParamAtomicSwapExternalTxID
	// ParamAtomicSwapExternalTxOutputIndex is the HTLC output's vout, LockTx scope.
	ParamAtomicSwapExternalTxOutputIndex
	// ParamAtomicSwapExternalTx is the serialized signed transaction, per-subtx scope.
	ParamAtomicSwapExternalTx
	// ParamTransactionRegistered marks that broadcast was accepted, per-subtx scope.
	ParamTransactionRegistered
	// ParamState is the SwapTxState marker, per-subtx scope.
	ParamState
	// ParamSubTxIndex is used in outbound detail bundles; transient.
	ParamSubTxIndex
)

func (id TxParameterId) paramKey() params.Key { return params.Key(id) }

// TxDetails is the bundle addTxDetails publishes for the native-chain
// side to consume.
type TxDetails struct {
	AtomicSwapPeerAddress           string
	SubTxIndex                      SubTxId
	AtomicSwapExternalTxID          string
	AtomicSwapExternalTxOutputIndex uint32
}

// Status is a read-only snapshot of driver progress, used by the
// operator-facing CLI.
type Status struct {
	Role              SwapRole
	Address           string
	LockState         SwapTxState
	LockTxID          string
	LockConfirmations int64
	RedeemState       SwapTxState
	RedeemTxID        string
	RefundState       SwapTxState
	RefundTxID        string
}
