package swap

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
)

// fakeRPC implements BitcoinRPC with every completion invoked
// synchronously and inline, so driver tests never need to wait on a
// goroutine. Hooks have no default: a test sets every hook the driver
// will call, and calling an unset hook panics.
type fakeRPC struct {
	onGetRawChangeAddress func(cb func(addr btcutil.Address, err error))
	onFundRawTransaction  func(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error))
	onSignRawTransaction  func(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error))
	onSendRawTransaction  func(tx *wire.MsgTx, cb func(txid *chainhash.Hash, err error))
	onCreateRawTransaction func(inputs []btcjson.TransactionInput, outputs map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error))
	onDumpPrivKey         func(address btcutil.Address, cb func(wif *btcutil.WIF, err error))
	onGetTxOut            func(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error))
}

func (f *fakeRPC) GetRawChangeAddress(cb func(addr btcutil.Address, err error)) {
	f.onGetRawChangeAddress(cb)
}

func (f *fakeRPC) FundRawTransaction(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error)) {
	f.onFundRawTransaction(tx, cb)
}

func (f *fakeRPC) SignRawTransaction(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error)) {
	f.onSignRawTransaction(tx, cb)
}

func (f *fakeRPC) SendRawTransaction(tx *wire.MsgTx, cb func(txid *chainhash.Hash, err error)) {
	f.onSendRawTransaction(tx, cb)
}

func (f *fakeRPC) CreateRawTransaction(inputs []btcjson.TransactionInput, outputs map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error)) {
	f.onCreateRawTransaction(inputs, outputs, lockTime, cb)
}

func (f *fakeRPC) DumpPrivKey(address btcutil.Address, cb func(wif *btcutil.WIF, err error)) {
	f.onDumpPrivKey(address, cb)
}

func (f *fakeRPC) GetTxOut(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error)) {
	f.onGetTxOut(txHash, index, mempool, cb)
}
