// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// envelope uses cbor tags, the convention for CBOR-only types.
type envelope struct {
	Action  string `cbor:"action"`
	Address string `cbor:"address,omitempty"`
}

// listing uses json tags, the convention for types the CLI also prints
// as JSON.
type listing struct {
	Address string    `json:"address"`
	Ports   []uint16  `json:"ports"`
	Started time.Time `json:"started"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := envelope{Action: "stop", Address: "hnvcppgow2sc2yvdvdicu3ynonsteflxdxrehjr2ybekdc2z3iu63yid"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"action": "list", "b": 2, "a": 1}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	messages := []envelope{
		{Action: "list"},
		{Action: "stop", Address: "abc"},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range messages {
		var got envelope
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode message %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallbackAndTime(t *testing.T) {
	started := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	original := listing{Address: "abc", Ports: []uint16{23, 8080}, Started: started}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var generic map[string]any
	if err := Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	for _, key := range []string{"address", "ports", "started"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("encoded map lacks json-tag key %q: %v", key, generic)
		}
	}

	var decoded listing
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Started.Equal(started) {
		t.Errorf("Started = %v, want %v", decoded.Started, started)
	}
	if decoded.Address != "abc" || len(decoded.Ports) != 2 || decoded.Ports[1] != 8080 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	with, err := Marshal(envelope{Action: "stop", Address: "x"})
	if err != nil {
		t.Fatal(err)
	}
	without, err := Marshal(envelope{Action: "stop"})
	if err != nil {
		t.Fatal(err)
	}
	if len(without) >= len(with) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes", len(without), len(with))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var message envelope
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &message); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "list"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"action"`) || !strings.Contains(notation, `"list"`) {
		t.Errorf("notation %q lacks the encoded fields", notation)
	}
}
