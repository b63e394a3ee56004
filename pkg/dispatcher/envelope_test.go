package dispatcher

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeRequest_Valid(t *testing.T) {
	raw := `{"id": 17, "namespace": "fs", "command": "readFile", "args": ["/tmp/a.txt", "utf8"], "isAsync": true}`

	req, err := DecodeRequest([]byte(raw))
	if err != nil {
		t.Fatalf("dispatcher:envelope_test - unexpected error: %v", err)
	}
	if req.ID != 17 {
		t.Errorf("dispatcher:envelope_test - id = %d, want 17", req.ID)
	}
	if req.Ref() != "fs.readFile" {
		t.Errorf("dispatcher:envelope_test - ref = %s, want fs.readFile", req.Ref())
	}
	if !req.IsAsync {
		t.Error("dispatcher:envelope_test - expected isAsync")
	}
	if len(req.Args) != 2 || req.Args[1] != "utf8" {
		t.Errorf("dispatcher:envelope_test - args = %v", req.Args)
	}
}

func TestDecodeRequest_Defaults(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"id": 1, "namespace": "app", "command": "quit"}`))
	if err != nil {
		t.Fatalf("dispatcher:envelope_test - unexpected error: %v", err)
	}
	if req.IsAsync {
		t.Error("dispatcher:envelope_test - missing isAsync should mean sync")
	}
	if req.Args == nil || len(req.Args) != 0 {
		t.Errorf("dispatcher:envelope_test - missing args should decode as empty, got %#v", req.Args)
	}
}

func TestDecodeRequest_NumbersStayExact(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"id": 2, "namespace": "fs", "command": "chmod", "args": ["/x", 493]}`))
	if err != nil {
		t.Fatalf("dispatcher:envelope_test - unexpected error: %v", err)
	}
	if n, ok := req.Args[1].(json.Number); !ok || n.String() != "493" {
		t.Errorf("dispatcher:envelope_test - args[1] = %#v, want json.Number 493", req.Args[1])
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		wantID bool
		id     int64
	}{
		{name: "not json", frame: `{{{`},
		{name: "array frame", frame: `[1,2,3]`},
		{name: "null frame", frame: `null`},
		{name: "missing id", frame: `{"namespace":"fs","command":"stat"}`},
		{name: "string id", frame: `{"id":"1","namespace":"fs","command":"stat"}`},
		{name: "fractional id", frame: `{"id":1.5,"namespace":"fs","command":"stat"}`},
		{name: "two values", frame: `{"id":1,"namespace":"fs","command":"stat"} {}`},
		{name: "missing namespace", frame: `{"id":4,"command":"stat"}`, wantID: true, id: 4},
		{name: "numeric command", frame: `{"id":5,"namespace":"fs","command":9}`, wantID: true, id: 5},
		{name: "empty command", frame: `{"id":6,"namespace":"fs","command":""}`, wantID: true, id: 6},
		{name: "args object", frame: `{"id":7,"namespace":"fs","command":"stat","args":{}}`, wantID: true, id: 7},
		{name: "isAsync string", frame: `{"id":8,"namespace":"fs","command":"stat","isAsync":"yes"}`, wantID: true, id: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(tt.frame))
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("dispatcher:envelope_test - err = %v, want *DecodeError", err)
			}
			id, ok := decErr.ID()
			if ok != tt.wantID {
				t.Fatalf("dispatcher:envelope_test - id recovered = %t, want %t (%s)", ok, tt.wantID, decErr.Message)
			}
			if ok && id != tt.id {
				t.Errorf("dispatcher:envelope_test - id = %d, want %d", id, tt.id)
			}
		})
	}
}

func TestResponse_MarshalEmptyResult(t *testing.T) {
	data, err := json.Marshal(&Response{ID: 3, Result: []any{}})
	if err != nil {
		t.Fatalf("dispatcher:envelope_test - marshal failed: %v", err)
	}
	if string(data) != `{"id":3,"result":[]}` {
		t.Errorf("dispatcher:envelope_test - got %s", data)
	}
}
