package swap

import (
	"bytes"
	"encoding/hex"
	"math"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/beam-mw/btcswap/params"
)

// SendLockTx drives the LOCK_TX state machine (buildLockTx) to
// Constructed, then broadcasts it. Returns true only once broadcast was
// confirmed accepted by the node.
func (d *Driver) SendLockTx() (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}

	state, err := d.subTxState(LockTx)
	if err != nil {
		return false, err
	}

	switch state {
	case StateInitial:
		d.startBuildLockTx()
		return false, nil
	case StateCreatingTx:
		if d.lockPh == lockPhaseIdle {
			// Either the very first advance after a restart, or a
			// transient RPC failure reset the in-memory phase:
			// resume by reissuing from fundrawtransaction.
			d.startBuildLockTx()
		}
		return false, nil
	case StateConstructed:
		tx, err := d.loadLockRawTx()
		if err != nil {
			return false, err
		}
		return d.registerTx(tx, LockTx)
	default:
		return false, nil
	}
}

func (d *Driver) subTxState(id SubTxId) (SwapTxState, error) {
	v, has, err := d.store.GetUint32(ParamState.paramKey(), id.paramSubTx())
	if err != nil {
		return StateInitial, err
	}
	if !has {
		return StateInitial, nil
	}
	return SwapTxState(v), nil
}

func (d *Driver) setSubTxState(id SubTxId, s SwapTxState) error {
	return d.store.SetUint32(ParamState.paramKey(), id.paramSubTx(), uint32(s), true)
}

// startBuildLockTx issues fundrawtransaction for a fresh zero-input
// transaction whose single output pays the contract script. A no-op if
// already in flight.
func (d *Driver) startBuildLockTx() {
	if d.lockPh != lockPhaseIdle || d.cancelled {
		return
	}

	script, err := d.contractScript()
	if err != nil {
		d.lastErr = err
		return
	}
	amount, has, err := d.store.GetUint64(ParamAtomicSwapAmount.paramKey(), params.NoSubTx)
	if err != nil {
		d.lastErr = err
		return
	}
	if !has {
		d.lastErr = &ConfigurationError{Param: "AtomicSwapAmount"}
		return
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(int64(amount), script))

	if serr := d.setSubTxState(LockTx, StateCreatingTx); serr != nil {
		d.lastErr = serr
		return
	}
	d.lockPh = lockPhaseAwaitingFund

	d.rpc.FundRawTransaction(tx, func(res *btcjson.FundRawTransactionResult, err error) {
		if err != nil {
			d.lockPh = lockPhaseIdle
			d.log.Errorf("fundrawtransaction failed: %v", err)
			return
		}
		if res.ChangePosition > 1 || res.ChangePosition < -1 {
			d.lastErr = &ConsensusMismatchError{Reason: "fundrawtransaction produced more than one extra output"}
			return
		}

		var vout uint32
		if res.ChangePosition == 0 {
			vout = 1
		} else {
			vout = 0
		}
		d.lockVout = vout

		if serr := d.store.SetUint32(ParamAtomicSwapExternalTxOutputIndex.paramKey(), LockTx.paramSubTx(), vout, true); serr != nil {
			d.lastErr = serr
			return
		}

		d.lockPh = lockPhaseAwaitingSign
		d.rpc.SignRawTransaction(res.Transaction, func(signed *wire.MsgTx, complete bool, err error) {
			if err != nil {
				d.lockPh = lockPhaseIdle
				d.log.Errorf("signrawtransaction failed: %v", err)
				return
			}
			if !complete {
				d.lastErr = &SigningFailureError{Reason: "node returned complete=false for LOCK_TX"}
				return
			}

			d.lockRawTx = signed
			var buf bytes.Buffer
			if werr := signed.Serialize(&buf); werr != nil {
				d.lastErr = werr
				return
			}
			if serr := d.store.SetString(ParamAtomicSwapExternalTx.paramKey(), LockTx.paramSubTx(), hex.EncodeToString(buf.Bytes()), true); serr != nil {
				d.lastErr = serr
				return
			}
			if serr := d.setSubTxState(LockTx, StateConstructed); serr != nil {
				d.lastErr = serr
				return
			}
			d.lockPh = lockPhaseIdle
			d.notifyAdvance()
		})
	})
}

func (d *Driver) loadLockRawTx() (*wire.MsgTx, error) {
	if d.lockRawTx != nil {
		return d.lockRawTx, nil
	}
	raw, err := d.getMandatoryString(ParamAtomicSwapExternalTx, LockTx.paramSubTx())
	if err != nil {
		return nil, err
	}
	tx, err := decodeTxHex(raw)
	if err != nil {
		return nil, err
	}
	d.lockRawTx = tx
	return tx, nil
}

func decodeTxHex(raw string) (*wire.MsgTx, error) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return tx, nil
}

// registerTx idempotently broadcasts tx for subTxId: once
// TransactionRegistered is set, every subsequent call just reads the
// persisted flag.
func (d *Driver) registerTx(tx *wire.MsgTx, subTxId SubTxId) (bool, error) {
	registered, has, err := d.store.GetBool(ParamTransactionRegistered.paramKey(), subTxId.paramSubTx())
	if err != nil {
		return false, err
	}
	if has {
		if !registered {
			return false, &BroadcastRejectedError{SubTx: subTxId}
		}
		return true, nil
	}
	if d.cancelled || d.broadcastInFlight[subTxId] {
		return false, nil
	}
	d.broadcastInFlight[subTxId] = true

	d.rpc.SendRawTransaction(tx, func(txid *chainhash.Hash, err error) {
		delete(d.broadcastInFlight, subTxId)
		ok := err == nil && txid != nil
		if serr := d.store.SetBool(ParamTransactionRegistered.paramKey(), subTxId.paramSubTx(), ok, true); serr != nil {
			d.lastErr = serr
			return
		}
		if ok {
			if serr := d.store.SetString(ParamAtomicSwapExternalTxID.paramKey(), subTxId.paramSubTx(), txid.String(), true); serr != nil {
				d.lastErr = serr
				return
			}
		} else {
			d.lastErr = &BroadcastRejectedError{SubTx: subTxId}
		}
		d.notifyAdvance()
	})
	return false, nil
}

// ConfirmLockTx waits for the peer-reported lock txid, then polls
// gettxout until confirmations reach BTCMinTxConfirmations.
func (d *Driver) ConfirmLockTx() (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}
	if d.lockConfirmations >= BTCMinTxConfirmations {
		return true, nil
	}

	txidStr, has, err := d.store.GetString(ParamAtomicSwapExternalTxID.paramKey(), LockTx.paramSubTx())
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}
	vout, has, err := d.store.GetUint32(ParamAtomicSwapExternalTxOutputIndex.paramKey(), LockTx.paramSubTx())
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}

	if d.confirmFetchInFlight || d.cancelled {
		return false, nil
	}

	txHash, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return false, &ConsensusMismatchError{Reason: "malformed lock txid: " + err.Error()}
	}

	d.confirmFetchInFlight = true
	d.rpc.GetTxOut(txHash, vout, false, func(res *btcjson.GetTxOutResult, err error) {
		d.confirmFetchInFlight = false
		if err != nil {
			d.log.Errorf("gettxout failed: %v", err)
			return
		}
		if res == nil {
			// Spent or unknown output: abort this polling round only.
			d.log.Infof("gettxout: lock output spent or unknown")
			d.notifyAdvance()
			return
		}

		amount, has, aerr := d.store.GetUint64(ParamAtomicSwapAmount.paramKey(), params.NoSubTx)
		if aerr != nil {
			d.lastErr = aerr
			return
		}
		if has {
			gotSat := uint64(math.Round(res.Value * SatoshiPerBitcoin))
			if gotSat < amount {
				d.lastErr = &ConsensusMismatchError{Reason: "lock output under-funded"}
				d.notifyAdvance()
				return
			}
		}

		wantScript, serr := d.contractScript()
		if serr != nil {
			d.lastErr = serr
			return
		}
		gotScript, derr := hex.DecodeString(res.ScriptPubKey.Hex)
		if derr != nil {
			d.lastErr = &ConsensusMismatchError{Reason: "malformed scriptPubKey hex from node"}
			d.notifyAdvance()
			return
		}
		if !bytes.Equal(wantScript, gotScript) {
			d.lastErr = &ConsensusMismatchError{Reason: "lock output script does not match recomputed contract"}
			d.notifyAdvance()
			return
		}

		d.lockConfirmations = int64(res.Confirmations)
		d.notifyAdvance()
	})
	// A completion that already ran (synchronously) may have reached the
	// threshold.
	return d.lockConfirmations >= BTCMinTxConfirmations, nil
}
