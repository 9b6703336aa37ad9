package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"POKE","protocol_version":"0.2","x":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Type != TypePoke || m.ProtocolVersion != Version {
		t.Fatalf("base = %+v", m)
	}

	if _, err := DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("malformed message accepted")
	}
}

func TestIsKnownCode(t *testing.T) {
	for _, code := range []string{
		ErrProtoBadRequest, ErrNotBooted, ErrStateRead,
		ErrStateParse, ErrStateVersion, ErrSpawnFailed, ErrInternal,
	} {
		if !IsKnownCode(code) {
			t.Fatalf("%s not known", code)
		}
	}
	if IsKnownCode("E_MADE_UP") {
		t.Fatalf("unknown code accepted")
	}
	if !IsKnownCode("") {
		t.Fatalf("empty code should pass (no error)")
	}
}

func TestFrameOmitsEmptyOptionalFields(t *testing.T) {
	b, err := json.Marshal(FrameMsg{Type: TypeFrame, ProtocolVersion: Version, Step: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"mood", "hint", "hot_tags"} {
		if _, ok := m[key]; ok {
			t.Fatalf("empty %q serialized: %s", key, b)
		}
	}
}
