package swap

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"

	"github.com/beam-mw/btcswap/params"
)

// defaultWithdrawFeeSat is the flat fee the driver subtracts from the
// withdraw amount when the caller leaves withdrawFee unset.
const defaultWithdrawFeeSat = 1000

// SendRedeem claims the HTLC output with the revealed preimage.
func (d *Driver) SendRedeem() (bool, error) {
	return d.sendWithdrawTx(RedeemTx)
}

// SendRefund reclaims the HTLC output after the locktime.
func (d *Driver) SendRefund() (bool, error) {
	return d.sendWithdrawTx(RefundTx)
}

func (d *Driver) sendWithdrawTx(subTxId SubTxId) (bool, error) {
	if d.lastErr != nil {
		return false, d.lastErr
	}

	state, err := d.subTxState(subTxId)
	if err != nil {
		return false, err
	}

	switch state {
	case StateInitial:
		d.startCreateWithdrawTx(subTxId)
		return false, nil
	case StateCreatingTx:
		if d.withdrawPh[subTxId] == withdrawPhaseIdle {
			if tx, ok := d.withdrawRawTx[subTxId]; ok {
				d.startDumpPrivKey(subTxId, tx)
			} else {
				d.startCreateWithdrawTx(subTxId)
			}
		}
		return false, nil
	case StateConstructed:
		tx, err := d.loadWithdrawRawTx(subTxId)
		if err != nil {
			return false, err
		}
		return d.registerTx(tx, subTxId)
	default:
		return false, nil
	}
}

func (d *Driver) loadWithdrawRawTx(subTxId SubTxId) (*wire.MsgTx, error) {
	if tx, ok := d.withdrawRawTx[subTxId]; ok {
		return tx, nil
	}
	raw, err := d.getMandatoryString(ParamAtomicSwapExternalTx, subTxId.paramSubTx())
	if err != nil {
		return nil, err
	}
	tx, err := decodeTxHex(raw)
	if err != nil {
		return nil, err
	}
	d.withdrawRawTx[subTxId] = tx
	return tx, nil
}

// startCreateWithdrawTx issues createrawtransaction for subTxId's
// single-input spend of the lock output.
func (d *Driver) startCreateWithdrawTx(subTxId SubTxId) {
	if d.withdrawPh[subTxId] != withdrawPhaseIdle || d.cancelled {
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
	if amount <= defaultWithdrawFeeSatFor(d) {
		d.lastErr = &ConfigurationError{Param: "AtomicSwapAmount (below withdraw fee)"}
		return
	}
	payout := amount - defaultWithdrawFeeSatFor(d)

	lockTxid, err := d.getMandatoryString(ParamAtomicSwapExternalTxID, LockTx.paramSubTx())
	if err != nil {
		d.lastErr = err
		return
	}
	lockVout, has, err := d.store.GetUint32(ParamAtomicSwapExternalTxOutputIndex.paramKey(), LockTx.paramSubTx())
	if err != nil {
		d.lastErr = err
		return
	}
	if !has {
		d.lastErr = &ConfigurationError{Param: "AtomicSwapExternalTxOutputIndex", SubTx: LockTx}
		return
	}

	ourAddrStr, err := d.getMandatoryString(ParamAtomicSwapAddress, params.NoSubTx)
	if err != nil {
		d.lastErr = err
		return
	}
	ourAddr, err := btcutil.DecodeAddress(ourAddrStr, d.net)
	if err != nil {
		d.lastErr = err
		return
	}

	var lockTime *int64
	if subTxId == RefundTx {
		lt, has, err := d.store.GetUint64(ParamAtomicSwapExternalLockTime.paramKey(), params.NoSubTx)
		if err != nil {
			d.lastErr = err
			return
		}
		if !has {
			d.lastErr = &ConfigurationError{Param: "AtomicSwapExternalLockTime"}
			return
		}
		v := int64(lt)
		lockTime = &v
	}

	inputs := []btcjson.TransactionInput{{Txid: lockTxid, Vout: lockVout}}
	outputs := map[btcutil.Address]btcutil.Amount{ourAddr: btcutil.Amount(payout)}

	if serr := d.setSubTxState(subTxId, StateCreatingTx); serr != nil {
		d.lastErr = serr
		return
	}
	d.withdrawPh[subTxId] = withdrawPhaseAwaitingCreate

	d.rpc.CreateRawTransaction(inputs, outputs, lockTime, func(tx *wire.MsgTx, err error) {
		if err != nil {
			d.withdrawPh[subTxId] = withdrawPhaseIdle
			d.log.Errorf("createrawtransaction failed for subtx %d: %v", subTxId, err)
			return
		}
		if len(tx.TxIn) != 1 {
			d.lastErr = &ConsensusMismatchError{Reason: "createrawtransaction returned more than one input"}
			return
		}
		// Leave room for an absolute locktime on REFUND_TX to take
		// effect: nSequence must be below the max.
		tx.TxIn[0].Sequence = maxInputSequence - 1

		d.withdrawRawTx[subTxId] = tx
		d.startDumpPrivKey(subTxId, tx)
	})
}

func defaultWithdrawFeeSatFor(d *Driver) uint64 {
	if d.withdrawFee <= 0 {
		return defaultWithdrawFeeSat
	}
	return uint64(d.withdrawFee)
}

// startDumpPrivKey issues dumpprivkey for our address, then performs the
// local signing step (OnDumpPrivateKey) once the key arrives.
func (d *Driver) startDumpPrivKey(subTxId SubTxId, tx *wire.MsgTx) {
	if d.withdrawPh[subTxId] == withdrawPhaseAwaitingDump || d.cancelled {
		return
	}
	d.withdrawPh[subTxId] = withdrawPhaseAwaitingDump

	ourAddrStr, err := d.getMandatoryString(ParamAtomicSwapAddress, params.NoSubTx)
	if err != nil {
		d.lastErr = err
		return
	}
	ourAddr, err := btcutil.DecodeAddress(ourAddrStr, d.net)
	if err != nil {
		d.lastErr = err
		return
	}

	d.rpc.DumpPrivKey(ourAddr, func(wif *btcutil.WIF, err error) {
		if err != nil {
			d.withdrawPh[subTxId] = withdrawPhaseIdle
			d.log.Errorf("dumpprivkey failed for subtx %d: %v", subTxId, err)
			return
		}
		if serr := d.onDumpPrivateKey(subTxId, tx, wif); serr != nil {
			d.lastErr = serr
			return
		}
		d.withdrawPh[subTxId] = withdrawPhaseIdle
		d.notifyAdvance()
	})
}

// onDumpPrivateKey performs the local signing path: recompute the
// contract script, produce an endorsement over input 0 with the
// contract script as script-code, and install the REDEEM or REFUND
// input script.
func (d *Driver) onDumpPrivateKey(subTxId SubTxId, tx *wire.MsgTx, wif *btcutil.WIF) error {
	script, err := d.contractScript()
	if err != nil {
		return err
	}

	sig, err := txscript.RawTxInSignature(tx, 0, script, txscript.SigHashAll, wif.PrivKey)
	if err != nil {
		return &SigningFailureError{Reason: err.Error()}
	}
	pubKey := wif.PrivKey.PubKey().SerializeCompressed()

	builder := txscript.NewScriptBuilder()
	builder.AddData(sig)
	builder.AddData(pubKey)

	switch subTxId {
	case RefundTx:
		builder.AddOp(txscript.OP_0)
	case RedeemTx:
		secret, err := d.store.GetBytes(ParamPreImage.paramKey(), BeamRedeemTx.paramSubTx())
		if errors.Is(err, params.ErrNotFound) {
			return &ConfigurationError{Param: "PreImage", SubTx: BeamRedeemTx}
		}
		if err != nil {
			return err
		}
		builder.AddData(secret)
		builder.AddOp(txscript.OP_1)
	default:
		return &ConsensusMismatchError{Reason: "onDumpPrivateKey called for non-withdraw subtx"}
	}

	sigScript, err := builder.Script()
	if err != nil {
		return &SigningFailureError{Reason: err.Error()}
	}
	tx.TxIn[0].SignatureScript = sigScript

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	if err := d.store.SetString(ParamAtomicSwapExternalTx.paramKey(), subTxId.paramSubTx(), hex.EncodeToString(buf.Bytes()), true); err != nil {
		return err
	}
	return d.setSubTxState(subTxId, StateConstructed)
}
