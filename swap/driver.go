package swap

import (
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcutil"

	"github.com/beam-mw/btcswap/params"
)

// lockPhase and withdrawPhase track the in-flight RPC step within a
// CreatingTx state. They are in-memory only: after a restart they reset
// to idle and the relevant RPC is simply reissued.
type lockPhase uint8

const (
	lockPhaseIdle lockPhase = iota
	lockPhaseAwaitingFund
	lockPhaseAwaitingSign
)

type withdrawPhase uint8

const (
	withdrawPhaseIdle withdrawPhase = iota
	withdrawPhaseAwaitingCreate
	withdrawPhaseAwaitingDump
)

// Driver is the per-swap Bitcoin-side state machine. It is cheap to
// construct and may be rebuilt from persisted state on every restart:
// the Driver itself holds no state that isn't either derivable from the
// Store or reconstructible by reissuing the in-flight RPC.
type Driver struct {
	store *params.Store
	rpc   BitcoinRPC
	net   *chaincfg.Params
	role  SwapRole

	// withdrawFee is the flat per-kilobyte-agnostic satoshi fee
	// subtracted from a redeem/refund output. No dynamic fee estimation
	// is implemented; 0 falls back to defaultWithdrawFeeSat.
	withdrawFee int64

	log btclog.Logger

	// In-memory caches, per the Design Notes: lowest populated tier
	// wins (in-memory, then parameter store, then rebuild from RPC).
	lockRawTx     *wire.MsgTx
	withdrawRawTx map[SubTxId]*wire.MsgTx

	lockPh     lockPhase
	lockVout   uint32
	withdrawPh map[SubTxId]withdrawPhase

	addrFetchInFlight    bool
	confirmFetchInFlight bool
	lockConfirmations    int64

	cancelled bool
	lastErr   error

	broadcastInFlight map[SubTxId]bool

	onAdvance func()
}

// NewDriver constructs a Driver bound to the given parameter store and
// RPC client. onAdvance, if non-nil, is invoked (via the store's
// Dispatcher) whenever an RPC completion moves the swap forward enough
// that the outer transaction should call an advance operation again.
func NewDriver(store *params.Store, rpc BitcoinRPC, net *chaincfg.Params, role SwapRole, withdrawFeeSat int64, log btclog.Logger, onAdvance func()) *Driver {
	return &Driver{
		store:             store,
		rpc:               rpc,
		net:               net,
		role:              role,
		withdrawFee:       withdrawFeeSat,
		log:               log,
		withdrawRawTx:     make(map[SubTxId]*wire.MsgTx),
		withdrawPh:        make(map[SubTxId]withdrawPhase),
		broadcastInFlight: make(map[SubTxId]bool),
		onAdvance:         onAdvance,
	}
}

func (d *Driver) notifyAdvance() {
	if d.onAdvance != nil {
		d.store.UpdateAsync(d.onAdvance)
	}
}

// Initial ensures AtomicSwapAddress exists, issuing getrawchangeaddress
// if not, and, for a BTC-owning initiator, generates and persists the
// redeem secret. Returns true once the address is known.
func (d *Driver) Initial() (bool, error) {
	addr, ok, err := d.store.GetString(ParamAtomicSwapAddress.paramKey(), params.NoSubTx)
	if err != nil {
		return false, err
	}
	if !ok {
		if d.addrFetchInFlight || d.cancelled {
			return false, nil
		}
		d.addrFetchInFlight = true
		d.rpc.GetRawChangeAddress(func(address btcutil.Address, err error) {
			d.addrFetchInFlight = false
			if err != nil {
				d.log.Errorf("getrawchangeaddress failed: %v", err)
				return
			}
			if serr := d.store.SetString(ParamAtomicSwapAddress.paramKey(), params.NoSubTx, address.EncodeAddress(), true); serr != nil {
				d.log.Errorf("persisting atomic swap address failed: %v", serr)
				return
			}
			d.notifyAdvance()
		})
		return false, nil
	}

	if d.role.IsBtcOwner && d.role.IsInitiator {
		_, err := d.store.GetBytes(ParamPreImage.paramKey(), BeamRedeemTx.paramSubTx())
		if err != nil && !errors.Is(err, params.ErrNotFound) {
			return false, err
		}
		if errors.Is(err, params.ErrNotFound) {
			preimage := make([]byte, 32)
			if _, rerr := rand.Read(preimage); rerr != nil {
				return false, rerr
			}
			if serr := d.store.SetBytes(ParamPreImage.paramKey(), BeamRedeemTx.paramSubTx(), preimage, true); serr != nil {
				return false, serr
			}
		}
	}

	_ = addr
	return true, nil
}

// InitLockTime sets AtomicSwapExternalLockTime := CreateTime +
// BTCLockTimeSec, if not already set.
func (d *Driver) InitLockTime() error {
	if _, has, err := d.store.GetUint64(ParamAtomicSwapExternalLockTime.paramKey(), params.NoSubTx); err != nil {
		return err
	} else if has {
		return nil
	}

	createTime, has, err := d.store.GetUint64(ParamCreateTime.paramKey(), params.NoSubTx)
	if err != nil {
		return err
	}
	if !has {
		return &ConfigurationError{Param: "CreateTime"}
	}
	return d.store.SetUint64(ParamAtomicSwapExternalLockTime.paramKey(), params.NoSubTx, createTime+BTCLockTimeSec, true)
}

// AddTxDetails emits the peer-bound parameter bundle for the LOCK_TX.
func (d *Driver) AddTxDetails() (TxDetails, error) {
	ourAddr, err := d.getMandatoryString(ParamAtomicSwapAddress, params.NoSubTx)
	if err != nil {
		return TxDetails{}, err
	}
	txid, err := d.getMandatoryString(ParamAtomicSwapExternalTxID, LockTx.paramSubTx())
	if err != nil {
		return TxDetails{}, err
	}
	vout, has, err := d.store.GetUint32(ParamAtomicSwapExternalTxOutputIndex.paramKey(), LockTx.paramSubTx())
	if err != nil {
		return TxDetails{}, err
	}
	if !has {
		return TxDetails{}, &ConfigurationError{Param: "AtomicSwapExternalTxOutputIndex", SubTx: LockTx}
	}

	return TxDetails{
		AtomicSwapPeerAddress:           ourAddr,
		SubTxIndex:                      LockTx,
		AtomicSwapExternalTxID:          txid,
		AtomicSwapExternalTxOutputIndex: vout,
	}, nil
}

// LastErr returns the most recent fatal error recorded by the lock or
// withdraw state machines (in an RPC completion callback or while
// preparing an RPC), if any. SendLockTx, ConfirmLockTx, SendRedeem and
// SendRefund check this first and surface it instead of proceeding.
func (d *Driver) LastErr() error {
	return d.lastErr
}

// Cancel observes an external cancellation: no further RPCs will be
// issued by subsequent advance calls. In-flight RPC goroutines are
// unaffected; their completions still land and still write state, but
// the driver refuses any new broadcast attempt past this point.
func (d *Driver) Cancel() {
	d.cancelled = true
}

// Status returns a read-only progress snapshot for the operator CLI.
func (d *Driver) Status() (Status, error) {
	s := Status{Role: d.role}

	if addr, ok, err := d.store.GetString(ParamAtomicSwapAddress.paramKey(), params.NoSubTx); err == nil && ok {
		s.Address = addr
	}

	lockState, _, _ := d.store.GetUint32(ParamState.paramKey(), LockTx.paramSubTx())
	s.LockState = SwapTxState(lockState)
	s.LockTxID, _, _ = d.store.GetString(ParamAtomicSwapExternalTxID.paramKey(), LockTx.paramSubTx())
	s.LockConfirmations = d.lockConfirmations

	redeemState, _, _ := d.store.GetUint32(ParamState.paramKey(), RedeemTx.paramSubTx())
	s.RedeemState = SwapTxState(redeemState)
	s.RedeemTxID, _, _ = d.store.GetString(ParamAtomicSwapExternalTxID.paramKey(), RedeemTx.paramSubTx())

	refundState, _, _ := d.store.GetUint32(ParamState.paramKey(), RefundTx.paramSubTx())
	s.RefundState = SwapTxState(refundState)
	s.RefundTxID, _, _ = d.store.GetString(ParamAtomicSwapExternalTxID.paramKey(), RefundTx.paramSubTx())

	return s, nil
}

func (d *Driver) getMandatoryString(id TxParameterId, subTx params.SubTx) (string, error) {
	v, has, err := d.store.GetString(id.paramKey(), subTx)
	if err != nil {
		return "", err
	}
	if !has {
		return "", &ConfigurationError{Param: paramName(id)}
	}
	return v, nil
}

func paramName(id TxParameterId) string {
	switch id {
	case ParamCreateTime:
		return "CreateTime"
	case ParamAtomicSwapAmount:
		return "AtomicSwapAmount"
	case ParamAtomicSwapAddress:
		return "AtomicSwapAddress"
	case ParamAtomicSwapPeerAddress:
		return "AtomicSwapPeerAddress"
	case ParamAtomicSwapExternalLockTime:
		return "AtomicSwapExternalLockTime"
	case ParamPreImage:
		return "PreImage"
	case ParamPeerLockImage:
		return "PeerLockImage"
	case ParamAtomicSwapExternalTxID:
		return "AtomicSwapExternalTxID"
	case ParamAtomicSwapExternalTxOutputIndex:
		return "AtomicSwapExternalTxOutputIndex"
	case ParamAtomicSwapExternalTx:
		return "AtomicSwapExternalTx"
	case ParamTransactionRegistered:
		return "TransactionRegistered"
	case ParamState:
		return "State"
	case ParamSubTxIndex:
		return "SubTxIndex"
	default:
		return "unknown"
	}
}

// hexEncode returns the lowercase hex encoding of b.
func hexEncode(b []byte) string { return hex.EncodeToString(b) }
