package models

import (
	"encoding/json"
)

// EmptySchema is stored when a device registers without declaring a schema.
var EmptySchema = json.RawMessage(`{}`)

// Device is a registered endpoint as seen by a linked account.
type Device struct {
	Pubkey       Pubkey          `json:"device_pubkey"`
	Accepted     bool            `json:"device_accepted"`
	Title        string          `json:"device_title"`
	LocalAddress string          `json:"device_local_ip"`
	Schema       json.RawMessage `json:"device_schema"`
}

// Clone returns a copy that shares no mutable state with d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Schema = append(json.RawMessage(nil), d.Schema...)
	return &cp
}

// Properties is a bag of named property values. Values are opaque JSON documents.
type Properties map[string]json.RawMessage
