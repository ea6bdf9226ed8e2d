package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
)

func TestParsePubkey(t *testing.T) {
	var want Pubkey
	for i := range want {
		want[i] = byte(i + 1)
	}
	encoded := base58.Encode(want[:])

	got, err := ParsePubkey(encoded)
	if err != nil {
		t.Fatalf("ParsePubkey: %v", err)
	}
	if got != want {
		t.Errorf("decoded %x, want %x", got, want)
	}
	if got.String() != encoded {
		t.Errorf("String: got %s, want %s", got.String(), encoded)
	}
}

func TestParsePubkey_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"not base58":  "0OIl",
		"too short":   base58.Encode([]byte{1, 2, 3}),
		"too long":    base58.Encode([]byte(strings.Repeat("x", PubkeySize+1))),
		"punctuation": "abc-def",
	}
	var valid Pubkey
	valid[0] = 9
	cases["leading space"] = " " + valid.String()
	cases["trailing newline"] = valid.String() + "\n"
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePubkey(in); !errors.Is(err, ErrInputMalformed) {
				t.Errorf("ParsePubkey(%q): got %v, want ErrInputMalformed", in, err)
			}
		})
	}
}

func TestPubkeyJSON(t *testing.T) {
	var pk Pubkey
	pk[0] = 7
	data, err := json.Marshal(struct {
		Device Pubkey `json:"device"`
	}{pk})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), pk.String()) {
		t.Errorf("marshalled %s does not contain base58 %s", data, pk.String())
	}

	var back struct {
		Device Pubkey `json:"device"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Device != pk {
		t.Errorf("round trip: got %x", back.Device)
	}

	if err := json.Unmarshal([]byte(`{"device":42}`), &back); !errors.Is(err, ErrInputMalformed) {
		t.Errorf("non-string device: got %v", err)
	}
}
