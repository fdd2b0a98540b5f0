// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package masterflex

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
)

// Status is the result discriminator
type Status string

// Result statuses
const (
	StatusData            Status = "data"
	StatusOK              Status = "OK"
	StatusInvalid         Status = "Invalid"
	StatusNotInSerialMode Status = "Not in Serial Comms mode"
	StatusNotPumpMessage  Status = "Not a pump message"
)

// Result field keys
const (
	FieldResult            = "result"
	FieldError             = "error"
	FieldSpeed             = "speed"
	FieldUnit              = "unit"
	FieldAddress           = "address"
	FieldMotorStatus       = "motor_status"
	FieldDirection         = "direction"
	FieldVolume            = "volume"
	FieldIndex             = "index"
	FieldOnTime            = "on-time"
	FieldOffTime           = "off-time"
	FieldVersion           = "version"
	FieldModel             = "Model"
	FieldSerialCommVersion = "SerialComm Version"
	FieldStatus            = "status"
	FieldCount             = "count"
	FieldTotal             = "total"
)

// Result is a decoded pump reply, or the outcome of a rejected parameter.
// Data holds the command specific fields.
type Result struct {
	Command Command
	Status  Status
	Error   string
	Data    map[string]interface{}
}

func invalidResult(cmd Command, message string) Result {
	return Result{Command: cmd, Status: StatusInvalid, Error: message}
}

func dataResult(cmd Command, fields map[string]interface{}) Result {
	return Result{Command: cmd, Status: StatusData, Data: fields}
}

// Success reports whether the pump acknowledged a mutate command
func (r Result) Success() bool {
	return r.Status == StatusOK
}

// IsData reports whether r carries query data
func (r Result) IsData() bool {
	return r.Status == StatusData
}

// Get returns a raw field value
func (r Result) Get(key string) (interface{}, bool) {
	if r.Data == nil {
		return nil, false
	}
	v, ok := r.Data[key]
	return v, ok
}

// GetString returns a string field
func (r Result) GetString(key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat returns a numeric field as float64
func (r Result) GetFloat(key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	}
	return 0, false
}

// GetInt returns an integer field
func (r Result) GetInt(key string) (int, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case uint64:
		return int(val), true
	}
	return 0, false
}

// Map flattens the result into the keyed form {"result": ..., <fields>}
func (r Result) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Data)+2)
	for k, v := range r.Data {
		m[k] = v
	}
	m[FieldResult] = string(r.Status)
	if r.Error != "" {
		m[FieldError] = r.Error
	}
	return m
}

// MarshalJSON encodes the flattened map
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// MarshalCBOR encodes the flattened map
func (r Result) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(r.Map())
}
