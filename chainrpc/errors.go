package chainrpc

import (
	goerrors "github.com/go-errors/errors"
)

// RpcError wraps a Bitcoin JSON-RPC failure: a node-returned `error`
// field or a transport/connection failure. It is recoverable: the caller
// treats the RPC as not having returned and may retry on the next
// advance.
type RpcError struct {
	Op  string
	Err error
}

func (e *RpcError) Error() string {
	return "chainrpc: " + e.Op + ": " + e.Err.Error()
}

func (e *RpcError) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RpcError{Op: op, Err: goerrors.Wrap(err, 1)}
}
