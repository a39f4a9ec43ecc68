package swap

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
)

// BitcoinRPC is the asynchronous Bitcoin node façade the driver needs.
// *chainrpc.Client satisfies it structurally; tests substitute a fake
// that completes callbacks synchronously.
type BitcoinRPC interface {
	GetRawChangeAddress(cb func(addr btcutil.Address, err error))
	FundRawTransaction(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error))
	SignRawTransaction(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error))
	SendRawTransaction(tx *wire.MsgTx, cb func(txid *chainhash.Hash, err error))
	CreateRawTransaction(inputs []btcjson.TransactionInput, outputs map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error))
	DumpPrivKey(address btcutil.Address, cb func(wif *btcutil.WIF, err error))
	GetTxOut(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error))
}
