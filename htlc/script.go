// Package htlc builds the pre-P2SH contract script that enforces hash
// time-locked contract semantics for the Bitcoin side of an atomic swap.
package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// maxScriptNum is the largest locktime or secret size BuildScript will
// accept. txscript encodes script numbers as minimally-sized signed
// integers; anything wider than this can't round-trip through the
// 4-byte script number format CHECKLOCKTIMEVERIFY and SIZE assume.
const maxScriptNum = 1<<31 - 1

// BuildScript produces the atomic-swap contract script:
//
//	OP_IF
//	  OP_SIZE <secretSize> OP_EQUALVERIFY
//	  OP_SHA256 <secretHash> OP_EQUALVERIFY
//	  OP_DUP OP_HASH160 <hashB>
//	OP_ELSE
//	  <locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	  OP_DUP OP_HASH160 <hashA>
//	OP_ENDIF
//	OP_EQUALVERIFY
//	OP_CHECKSIG
//
// hashA is the funder's (refunder's) public-key hash, hashB is the
// receiver's (redeemer's) public-key hash. locktime is an absolute unix
// timestamp in seconds. secretHash is SHA256(secret) and secretSize is
// the byte length of secret. The function is pure: the same arguments
// always produce the same bytes.
func BuildScript(hashA, hashB []byte, locktime int64, secretHash []byte, secretSize int64) ([]byte, error) {
	if len(hashA) != 20 {
		return nil, fmt.Errorf("htlc: hashA must be 20 bytes, got %d", len(hashA))
	}
	if len(hashB) != 20 {
		return nil, fmt.Errorf("htlc: hashB must be 20 bytes, got %d", len(hashB))
	}
	if len(secretHash) != 32 {
		return nil, fmt.Errorf("htlc: secretHash must be 32 bytes, got %d", len(secretHash))
	}
	if locktime < 0 || locktime > maxScriptNum {
		return nil, fmt.Errorf("htlc: locktime %d does not fit a script number", locktime)
	}
	if secretSize < 0 || secretSize > maxScriptNum {
		return nil, fmt.Errorf("htlc: secretSize %d does not fit a script number", secretSize)
	}

	b := txscript.NewScriptBuilder()

	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_SIZE)
	b.AddInt64(secretSize)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_SHA256)
	b.AddData(secretHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(hashB)
	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(locktime)
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(hashA)
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)

	return b.Script()
}
