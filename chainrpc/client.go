// Package chainrpc is a thin asynchronous façade over btcd/rpcclient
// exposing exactly the seven Bitcoin JSON-RPC operations the swap driver
// needs: getrawchangeaddress, fundrawtransaction, signrawtransaction,
// sendrawtransaction, createrawtransaction, dumpprivkey and gettxout.
//
// Every call spawns one goroutine to perform the blocking
// rpcclient ...Async(...).Receive(), then posts the completion onto a
// shared Dispatcher so the caller's state machine is only ever re-entered
// from one logical context, never concurrently.
package chainrpc

import (
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"

	"github.com/beam-mw/btcswap/dispatch"
)

// Client is the asynchronous Bitcoin RPC façade. It holds a borrowed
// *rpcclient.Client and a borrowed *dispatch.Dispatcher; it owns the
// lifetime of neither.
type Client struct {
	rpc *rpcclient.Client
	d   *dispatch.Dispatcher
}

// New builds a client for a Bitcoin node in HTTP POST (non-websocket)
// mode: persistent-connection notifications are unnecessary for a
// request/response-only client. TLS settings are taken from cfg as given.
func New(cfg *rpcclient.ConnConfig, d *dispatch.Dispatcher) (*Client, error) {
	connCfg := *cfg
	connCfg.HTTPPostMode = true
	connCfg.DisableConnectOnNew = true
	connCfg.DisableAutoReconnect = false

	rpc, err := rpcclient.New(&connCfg, nil)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc, d: d}, nil
}

// Shutdown tears down the underlying RPC connection.
func (c *Client) Shutdown() {
	c.rpc.Shutdown()
}

// GetRawChangeAddress requests a fresh internal address from the node's
// wallet.
func (c *Client) GetRawChangeAddress(cb func(addr btcutil.Address, err error)) {
	future := c.rpc.GetRawChangeAddressAsync("")
	go func() {
		addr, err := future.Receive()
		c.d.Post(func() { cb(addr, wrapErr("getrawchangeaddress", err)) })
	}()
}

// FundRawTransaction asks the node's wallet to add inputs (and, if
// needed, a change output) to tx so that it is fully funded.
func (c *Client) FundRawTransaction(tx *wire.MsgTx, cb func(res *btcjson.FundRawTransactionResult, err error)) {
	future := c.rpc.FundRawTransactionAsync(tx, btcjson.FundRawTransactionOpts{}, nil)
	go func() {
		res, err := future.Receive()
		c.d.Post(func() { cb(res, wrapErr("fundrawtransaction", err)) })
	}()
}

// SignRawTransaction asks the node's wallet to sign every input of tx it
// holds keys for.
func (c *Client) SignRawTransaction(tx *wire.MsgTx, cb func(signed *wire.MsgTx, complete bool, err error)) {
	future := c.rpc.SignRawTransactionAsync(tx)
	go func() {
		signed, complete, err := future.Receive()
		c.d.Post(func() { cb(signed, complete, wrapErr("signrawtransaction", err)) })
	}()
}

// SendRawTransaction broadcasts tx. A nil error with a nil txid never
// happens with rpcclient: rejection surfaces as err, and callers map
// that to BroadcastRejected.
func (c *Client) SendRawTransaction(tx *wire.MsgTx, cb func(txid *chainhash.Hash, err error)) {
	future := c.rpc.SendRawTransactionAsync(tx, false)
	go func() {
		txid, err := future.Receive()
		c.d.Post(func() { cb(txid, wrapErr("sendrawtransaction", err)) })
	}()
}

// CreateRawTransaction builds an unsigned transaction from the given
// inputs and outputs, optionally with an absolute locktime.
func (c *Client) CreateRawTransaction(inputs []btcjson.TransactionInput, outputs map[btcutil.Address]btcutil.Amount, lockTime *int64, cb func(tx *wire.MsgTx, err error)) {
	future := c.rpc.CreateRawTransactionAsync(inputs, outputs, lockTime)
	go func() {
		tx, err := future.Receive()
		c.d.Post(func() { cb(tx, wrapErr("createrawtransaction", err)) })
	}()
}

// DumpPrivKey retrieves the WIF-encoded private key behind address from
// the node's wallet.
func (c *Client) DumpPrivKey(address btcutil.Address, cb func(wif *btcutil.WIF, err error)) {
	future := c.rpc.DumpPrivKeyAsync(address)
	go func() {
		wif, err := future.Receive()
		c.d.Post(func() { cb(wif, wrapErr("dumpprivkey", err)) })
	}()
}

// GetTxOut fetches the current state of an output, or nil if it's
// missing or already spent.
func (c *Client) GetTxOut(txHash *chainhash.Hash, index uint32, mempool bool, cb func(res *btcjson.GetTxOutResult, err error)) {
	future := c.rpc.GetTxOutAsync(txHash, index, mempool)
	go func() {
		res, err := future.Receive()
		c.d.Post(func() { cb(res, wrapErr("gettxout", err)) })
	}()
}
