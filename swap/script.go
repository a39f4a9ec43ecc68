package swap

import (
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcutil"

	"github.com/beam-mw/btcswap/htlc"
	"github.com/beam-mw/btcswap/params"
)

// hash160FromAddress extracts the 20-byte pubkey hash behind a legacy
// P2PKH address string.
func (d *Driver) hash160FromAddress(addr string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, d.net)
	if err != nil {
		return nil, err
	}
	pkh, ok := decoded.(*btcutil.AddressPubKeyHash)
	if !ok {
		return nil, &ConsensusMismatchError{Reason: "address is not a P2PKH address: " + addr}
	}
	h := pkh.Hash160()
	return h[:], nil
}

// secretHash returns SHA256(secret) if we hold the preimage, or the
// peer's reported commitment otherwise. Exactly one of the two is
// available before lock time.
func (d *Driver) secretHash() ([]byte, error) {
	preimage, err := d.store.GetBytes(ParamPreImage.paramKey(), BeamRedeemTx.paramSubTx())
	if err == nil {
		h := sha256.Sum256(preimage)
		return h[:], nil
	}
	if !errors.Is(err, params.ErrNotFound) {
		return nil, err
	}

	peerHash, err := d.store.GetBytes(ParamPeerLockImage.paramKey(), BeamRedeemTx.paramSubTx())
	if errors.Is(err, params.ErrNotFound) {
		return nil, &ConfigurationError{Param: "PeerLockImage"}
	}
	if err != nil {
		return nil, err
	}
	return peerHash, nil
}

// contractScript recomputes the HTLC script from persisted parameters.
// It must be byte-identical to the script embedded in the on-chain lock
// output: both the lock-tx builder and the confirmation checker rely on
// it to stay in lockstep.
func (d *Driver) contractScript() ([]byte, error) {
	ourAddr, err := d.getMandatoryString(ParamAtomicSwapAddress, params.NoSubTx)
	if err != nil {
		return nil, err
	}
	peerAddr, err := d.getMandatoryString(ParamAtomicSwapPeerAddress, params.NoSubTx)
	if err != nil {
		return nil, err
	}
	locktime, has, err := d.store.GetUint64(ParamAtomicSwapExternalLockTime.paramKey(), params.NoSubTx)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, &ConfigurationError{Param: "AtomicSwapExternalLockTime"}
	}

	ourHash, err := d.hash160FromAddress(ourAddr)
	if err != nil {
		return nil, err
	}
	peerHash, err := d.hash160FromAddress(peerAddr)
	if err != nil {
		return nil, err
	}
	secretHash, err := d.secretHash()
	if err != nil {
		return nil, err
	}

	var hashA, hashB []byte
	if d.role.IsBtcOwner {
		// We fund the HTLC: we are the refunder (hashA), peer redeems (hashB).
		hashA, hashB = ourHash, peerHash
	} else {
		hashA, hashB = peerHash, ourHash
	}

	return htlc.BuildScript(hashA, hashB, int64(locktime), secretHash, 32)
}
