package models

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the length in bytes of a device identifier (an ed25519 public key).
const PubkeySize = 32

// Pubkey identifies a device. It crosses the API boundary as base58 text.
type Pubkey [PubkeySize]byte

// ParsePubkey decodes a base58 device identifier. Anything that is not valid
// base58 of exactly PubkeySize bytes is reported as ErrInputMalformed.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	if s == "" {
		return pk, fmt.Errorf("%w: empty device identifier", ErrInputMalformed)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: device identifier is not base58", ErrInputMalformed)
	}
	if len(raw) != PubkeySize {
		return pk, fmt.Errorf("%w: device identifier must be %d bytes, got %d", ErrInputMalformed, PubkeySize, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// PubkeyFromBytes converts a stored identifier back into a Pubkey.
func PubkeyFromBytes(raw []byte) (Pubkey, error) {
	var pk Pubkey
	if len(raw) != PubkeySize {
		return pk, fmt.Errorf("stored device identifier has %d bytes", len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

func (pk Pubkey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns the identifier as a slice for storage.
func (pk Pubkey) Bytes() []byte {
	return pk[:]
}

func (pk Pubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

func (pk *Pubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: device identifier must be a string", ErrInputMalformed)
	}
	parsed, err := ParsePubkey(s)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
