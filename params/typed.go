package params

import (
	"encoding/binary"
	"errors"
)

// The typed accessors below hand-encode each Go type the driver
// persists, one pair of functions per value type, rather than a single
// generic accessor.

// GetUint64 loads an 8-byte big-endian integer (used for timestamps and
// satoshi amounts).
func (s *Store) GetUint64(key Key, subTx SubTx) (uint64, bool, error) {
	raw, err := s.GetBytes(key, subTx)
	if errors.Is(err, errNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(raw) != 8 {
		return 0, false, errors.New("params: corrupt uint64 record")
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// SetUint64 persists an 8-byte big-endian integer.
func (s *Store) SetUint64(key Key, subTx SubTx, v uint64, persistImmediately bool) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return s.SetBytes(key, subTx, b, persistImmediately)
}

// GetString loads a UTF-8 string value.
func (s *Store) GetString(key Key, subTx SubTx) (string, bool, error) {
	raw, err := s.GetBytes(key, subTx)
	if errors.Is(err, errNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(raw), true, nil
}

// SetString persists a UTF-8 string value.
func (s *Store) SetString(key Key, subTx SubTx, v string, persistImmediately bool) error {
	return s.SetBytes(key, subTx, []byte(v), persistImmediately)
}

// GetBool loads a boolean flag.
func (s *Store) GetBool(key Key, subTx SubTx) (bool, bool, error) {
	raw, err := s.GetBytes(key, subTx)
	if errors.Is(err, errNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	if len(raw) != 1 {
		return false, false, errors.New("params: corrupt bool record")
	}
	return raw[0] != 0, true, nil
}

// SetBool persists a boolean flag.
func (s *Store) SetBool(key Key, subTx SubTx, v bool, persistImmediately bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	return s.SetBytes(key, subTx, []byte{b}, persistImmediately)
}

// GetUint32 loads a 4-byte big-endian integer (vout indices, state
// markers, subtx ids).
func (s *Store) GetUint32(key Key, subTx SubTx) (uint32, bool, error) {
	raw, err := s.GetBytes(key, subTx)
	if errors.Is(err, errNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(raw) != 4 {
		return 0, false, errors.New("params: corrupt uint32 record")
	}
	return binary.BigEndian.Uint32(raw), true, nil
}

// SetUint32 persists a 4-byte big-endian integer.
func (s *Store) SetUint32(key Key, subTx SubTx, v uint32, persistImmediately bool) error {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return s.SetBytes(key, subTx, b, persistImmediately)
}
