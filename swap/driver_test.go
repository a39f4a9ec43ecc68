package swap

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcutil"
	"github.com/stretchr/testify/require"

	"github.com/beam-mw/btcswap/dispatch"
	"github.com/beam-mw/btcswap/params"
)

func newTestAddress(t *testing.T, seed byte) (btcutil.Address, [20]byte) {
	var hash [20]byte
	hash[0] = seed
	addr, err := btcutil.NewAddressPubKeyHash(hash[:], &chaincfg.MainNetParams)
	require.NoError(t, err)
	return addr, hash
}

type testDriver struct {
	driver *Driver
	store  *params.Store
	rpc    *fakeRPC
}

func newTestDriver(t *testing.T, role SwapRole) *testDriver {
	t.Helper()

	d := dispatch.NewDispatcher()
	store, err := params.Open(filepath.Join(t.TempDir(), "swap.db"), d)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ourAddr, _ := newTestAddress(t, 0x01)
	peerAddr, _ := newTestAddress(t, 0x02)

	require.NoError(t, store.SetString(ParamAtomicSwapAddress.paramKey(), params.NoSubTx, ourAddr.EncodeAddress(), true))
	require.NoError(t, store.SetString(ParamAtomicSwapPeerAddress.paramKey(), params.NoSubTx, peerAddr.EncodeAddress(), true))
	require.NoError(t, store.SetUint64(ParamAtomicSwapExternalLockTime.paramKey(), params.NoSubTx, 1700000000, true))
	require.NoError(t, store.SetUint64(ParamAtomicSwapAmount.paramKey(), params.NoSubTx, 100000, true))
	require.NoError(t, store.SetBytes(ParamPeerLockImage.paramKey(), BeamRedeemTx.paramSubTx(), make([]byte, 32), true))

	rpc := &fakeRPC{}
	drv := NewDriver(store, rpc, &chaincfg.MainNetParams, role, 1000, btclog.Disabled, nil)

	return &testDriver{driver: drv, store: store, rpc: rpc}
}

func dummyFundedTx(amount int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(amount, []byte{0x51}))
	tx.AddTxIn(&wire.TxIn{})
	return tx
}

// TestSendLockTxVoutMapping covers the changepos -> vout derivation from
// fundrawtransaction's reply: changepos 0 means our output landed
// at index 1, any other changepos means it landed at 0.
func TestSendLockTxVoutMapping(t *testing.T) {
	cases := []struct {
		changePos int64
		wantVout  uint32
	}{
		{changePos: 0, wantVout: 1},
		{changePos: 1, wantVout: 0},
		{changePos: -1, wantVout: 0},
	}

	for _, c := range cases {
		td := newTestDriver(t, SwapRole{IsInitiator: true, IsBtcOwner: true})

		td.rpc.onFundRawTransaction = func(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error)) {
			cb(&btcjson.FundRawTransactionResult{
				Transaction:    dummyFundedTx(100500),
				ChangePosition: c.changePos,
			}, nil)
		}
		td.rpc.onSignRawTransaction = func(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error)) {
			cb(tx, true, nil)
		}

		ready, err := td.driver.SendLockTx()
		require.NoError(t, err)
		require.False(t, ready)

		vout, has, err := td.store.GetUint32(ParamAtomicSwapExternalTxOutputIndex.paramKey(), LockTx.paramSubTx())
		require.NoError(t, err)
		require.True(t, has)
		require.Equal(t, c.wantVout, vout)

		state, err := td.driver.subTxState(LockTx)
		require.NoError(t, err)
		require.Equal(t, StateConstructed, state)
	}
}

// TestSendLockTxRejectsMultiOutputFunding exercises the consensus-mismatch
// guard on a fundrawtransaction reply with more than one extra output.
func TestSendLockTxRejectsMultiOutputFunding(t *testing.T) {
	td := newTestDriver(t, SwapRole{IsInitiator: true, IsBtcOwner: true})

	td.rpc.onFundRawTransaction = func(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error)) {
		cb(&btcjson.FundRawTransactionResult{
			Transaction:    dummyFundedTx(100500),
			ChangePosition: 2,
		}, nil)
	}

	_, err := td.driver.SendLockTx()
	require.NoError(t, err)
	require.Error(t, td.driver.LastErr())
	require.IsType(t, &ConsensusMismatchError{}, td.driver.LastErr())
}

// TestSendLockTxResumesAfterTransientFailure checks that a fundrawtransaction
// error resets the in-memory phase so the next advance call reissues it,
// instead of getting stuck forever in StateCreatingTx.
func TestSendLockTxResumesAfterTransientFailure(t *testing.T) {
	td := newTestDriver(t, SwapRole{IsInitiator: true, IsBtcOwner: true})

	calls := 0
	td.rpc.onFundRawTransaction = func(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error)) {
		calls++
		if calls == 1 {
			cb(nil, errTransient)
			return
		}
		cb(&btcjson.FundRawTransactionResult{Transaction: dummyFundedTx(100500), ChangePosition: 0}, nil)
	}
	td.rpc.onSignRawTransaction = func(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error)) {
		cb(tx, true, nil)
	}

	_, err := td.driver.SendLockTx()
	require.NoError(t, err)
	require.NoError(t, td.driver.LastErr())

	state, err := td.driver.subTxState(LockTx)
	require.NoError(t, err)
	require.Equal(t, StateCreatingTx, state)

	_, err = td.driver.SendLockTx()
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	state, err = td.driver.subTxState(LockTx)
	require.NoError(t, err)
	require.Equal(t, StateConstructed, state)
}

var errTransient = &RpcErrorStub{}

// RpcErrorStub stands in for a transient chainrpc.RpcError without
// importing the chainrpc package into swap's tests.
type RpcErrorStub struct{}

func (*RpcErrorStub) Error() string { return "transient rpc failure" }

func setLockTxConstructed(t *testing.T, td *testDriver, lockVout uint32, lockAmount int64) *wire.MsgTx {
	t.Helper()

	script, err := td.driver.contractScript()
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	for i := uint32(0); i < lockVout+1; i++ {
		tx.AddTxOut(wire.NewTxOut(lockAmount, script))
	}
	tx.AddTxIn(&wire.TxIn{})

	require.NoError(t, td.store.SetUint32(ParamState.paramKey(), LockTx.paramSubTx(), uint32(StateConstructed), true))
	require.NoError(t, td.store.SetUint32(ParamAtomicSwapExternalTxOutputIndex.paramKey(), LockTx.paramSubTx(), lockVout, true))

	txHash := tx.TxHash()
	require.NoError(t, td.store.SetString(ParamAtomicSwapExternalTxID.paramKey(), LockTx.paramSubTx(), txHash.String(), true))
	require.NoError(t, td.store.SetBool(ParamTransactionRegistered.paramKey(), LockTx.paramSubTx(), true, true))

	return tx
}

// TestConfirmLockTxGating checks that confirmation counts below
// BTCMinTxConfirmations never report ready, and exactly
// BTCMinTxConfirmations does.
func TestConfirmLockTxGating(t *testing.T) {
	td := newTestDriver(t, SwapRole{IsInitiator: true, IsBtcOwner: true})

	lockTx := setLockTxConstructed(t, td, 0, 100000)
	script, err := td.driver.contractScript()
	require.NoError(t, err)

	for conf := int64(0); conf < BTCMinTxConfirmations; conf++ {
		td.rpc.onGetTxOut = func(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error)) {
			cb(&btcjson.GetTxOutResult{
				Value:         float64(100000) / SatoshiPerBitcoin,
				Confirmations: conf,
				ScriptPubKey:  btcjson.ScriptPubKeyResult{Hex: hexEncode(script)},
			}, nil)
		}
		ready, err := td.driver.ConfirmLockTx()
		require.NoError(t, err)
		require.False(t, ready, "confirmations=%d should not be ready", conf)
	}

	td.rpc.onGetTxOut = func(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error)) {
		cb(&btcjson.GetTxOutResult{
			Value:         float64(100000) / SatoshiPerBitcoin,
			Confirmations: BTCMinTxConfirmations,
			ScriptPubKey:  btcjson.ScriptPubKeyResult{Hex: hexEncode(script)},
		}, nil)
	}
	ready, err := td.driver.ConfirmLockTx()
	require.NoError(t, err)
	require.True(t, ready)

	// Calling again must short-circuit on the cached confirmation count
	// without issuing another gettxout.
	td.rpc.onGetTxOut = func(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error)) {
		t.Fatal("gettxout should not be reissued once confirmed")
	}
	ready, err = td.driver.ConfirmLockTx()
	require.NoError(t, err)
	require.True(t, ready)

	_ = lockTx
}

// TestConfirmLockTxScriptMismatchAborts checks that a scriptPubKey that
// disagrees with the recomputed contract script is treated as fatal.
func TestConfirmLockTxScriptMismatchAborts(t *testing.T) {
	td := newTestDriver(t, SwapRole{IsInitiator: true, IsBtcOwner: true})
	setLockTxConstructed(t, td, 0, 100000)

	td.rpc.onGetTxOut = func(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error)) {
		cb(&btcjson.GetTxOutResult{
			Value:         float64(100000) / SatoshiPerBitcoin,
			Confirmations: BTCMinTxConfirmations,
			ScriptPubKey:  btcjson.ScriptPubKeyResult{Hex: "51"},
		}, nil)
	}

	ready, err := td.driver.ConfirmLockTx()
	require.NoError(t, err)
	require.False(t, ready)
	require.Error(t, td.driver.LastErr())
	require.IsType(t, &ConsensusMismatchError{}, td.driver.LastErr())
}

// TestSendRefundInputScript verifies the REFUND input script's exact
// opcode shape: <sig><pubkey> OP_0.
func TestSendRefundInputScript(t *testing.T) {
	td := newTestDriver(t, SwapRole{IsInitiator: false, IsBtcOwner: true})
	priv, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
	require.NoError(t, err)

	lockTx := setLockTxConstructed(t, td, 0, 100000)
	lockTxHash := lockTx.TxHash()
	require.NoError(t, td.store.SetString(ParamAtomicSwapExternalTxID.paramKey(), LockTx.paramSubTx(), lockTxHash.String(), true))

	td.rpc.onCreateRawTransaction = func(inputs []btcjson.TransactionInput, outputs map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error)) {
		require.NotNil(t, lockTime)
		tx := wire.NewMsgTx(wire.TxVersion)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: lockTxHash, Index: 0}})
		tx.AddTxOut(wire.NewTxOut(99000, []byte{0x51}))
		cb(tx, nil)
	}
	td.rpc.onDumpPrivKey = func(address btcutil.Address, cb func(wif *btcutil.WIF, err error)) {
		cb(wif, nil)
	}

	ready, err := td.driver.SendRefund()
	require.NoError(t, err)
	require.False(t, ready)
	require.NoError(t, td.driver.LastErr())

	state, err := td.driver.subTxState(RefundTx)
	require.NoError(t, err)
	require.Equal(t, StateConstructed, state)

	tx := td.driver.withdrawRawTx[RefundTx]
	require.NotNil(t, tx)

	tokenizer := txscript.MakeScriptTokenizer(0, tx.TxIn[0].SignatureScript)
	require.True(t, tokenizer.Next())
	require.True(t, tokenizer.Next())
	require.True(t, tokenizer.Next())
	require.Equal(t, byte(txscript.OP_0), tokenizer.Opcode())
	require.False(t, tokenizer.Next())
}

// TestSendRedeemInputScript verifies the REDEEM input script's exact
// opcode shape: <sig><pubkey><preimage> OP_1.
func TestSendRedeemInputScript(t *testing.T) {
	td := newTestDriver(t, SwapRole{IsInitiator: true, IsBtcOwner: false})
	priv, err := btcec.NewPrivateKey(btcec.S256())
	require.NoError(t, err)
	wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, true)
	require.NoError(t, err)

	preimage := make([]byte, 32)
	preimage[0] = 0x42
	require.NoError(t, td.store.SetBytes(ParamPreImage.paramKey(), BeamRedeemTx.paramSubTx(), preimage, true))

	lockTx := setLockTxConstructed(t, td, 0, 100000)
	lockTxHash := lockTx.TxHash()

	td.rpc.onCreateRawTransaction = func(inputs []btcjson.TransactionInput, outputs map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error)) {
		require.Nil(t, lockTime)
		tx := wire.NewMsgTx(wire.TxVersion)
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: lockTxHash, Index: 0}})
		tx.AddTxOut(wire.NewTxOut(99000, []byte{0x51}))
		cb(tx, nil)
	}
	td.rpc.onDumpPrivKey = func(address btcutil.Address, cb func(wif *btcutil.WIF, err error)) {
		cb(wif, nil)
	}

	ready, err := td.driver.SendRedeem()
	require.NoError(t, err)
	require.False(t, ready)
	require.NoError(t, td.driver.LastErr())

	tx := td.driver.withdrawRawTx[RedeemTx]
	require.NotNil(t, tx)

	tokenizer := txscript.MakeScriptTokenizer(0, tx.TxIn[0].SignatureScript)
	require.True(t, tokenizer.Next())
	require.True(t, tokenizer.Next())
	require.True(t, tokenizer.Next())
	require.Equal(t, preimage, tokenizer.Data())
	require.True(t, tokenizer.Next())
	require.Equal(t, byte(txscript.OP_1), tokenizer.Opcode())
	require.False(t, tokenizer.Next())
}
