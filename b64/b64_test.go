package b64

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x00},
		{0xff, 0xfe, 0xfd},
		[]byte("a value that needs no escaping"),
		{0xfb, 0xff, 0xbf}, // produces '-' and '_' in the url alphabet
	}

	for _, c := range cases {
		encoded := Encode(c)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%q) returned error: %v", encoded, err)
		}
		if !bytes.Equal(decoded, c) {
			t.Errorf("round trip mismatch: got %x, want %x", decoded, c)
		}
	}
}

func TestDecodeRejectsPadding(t *testing.T) {
	if _, err := Decode("aGVsbG8="); err == nil {
		t.Error("expected padded input to be rejected")
	}
}

func TestBytesJSON(t *testing.T) {
	value := Bytes{0x01, 0x02, 0xff}

	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"AQL_"` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var decoded Bytes
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(decoded, value) {
		t.Errorf("round trip mismatch: got %x, want %x", decoded, value)
	}
}

func TestBytesUnmarshalInvalid(t *testing.T) {
	var decoded Bytes
	if err := json.Unmarshal([]byte(`"not!base64"`), &decoded); err == nil {
		t.Error("expected invalid base64 to be rejected")
	}
	if err := json.Unmarshal([]byte(`123`), &decoded); err == nil {
		t.Error("expected non-string JSON to be rejected")
	}
}
