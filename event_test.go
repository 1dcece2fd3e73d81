package pipebus

import (
	"testing"
	"time"
)

func TestEventCloneIsDeep(t *testing.T) {
	orig := NewEvent(map[string]any{
		"msg": "hello",
		"response": map[string]any{
			"status": 200,
			"tags":   []any{"a", "b"},
		},
		"headers": map[string]string{"host": "local"},
		"raw":     []byte("payload"),
		"names":   []string{"x", "y"},
	})
	orig.ID = "evt-1"
	orig.Origin = "upstream"
	orig.Timestamp = time.Unix(100, 0)

	clone := orig.Clone()

	// Mutate every nested layer of the clone.
	clone.Fields["msg"] = "changed"
	clone.Fields["response"].(map[string]any)["status"] = 500
	clone.Fields["response"].(map[string]any)["tags"].([]any)[0] = "z"
	clone.Fields["headers"].(map[string]string)["host"] = "remote"
	clone.Fields["raw"].([]byte)[0] = 'X'
	clone.Fields["names"].([]string)[0] = "q"

	if got := orig.Fields["msg"]; got != "hello" {
		t.Fatalf("original msg mutated: %v", got)
	}
	if got := orig.Fields["response"].(map[string]any)["status"]; got != 200 {
		t.Fatalf("original nested map mutated: %v", got)
	}
	if got := orig.Fields["response"].(map[string]any)["tags"].([]any)[0]; got != "a" {
		t.Fatalf("original nested slice mutated: %v", got)
	}
	if got := orig.Fields["headers"].(map[string]string)["host"]; got != "local" {
		t.Fatalf("original string map mutated: %v", got)
	}
	if got := orig.Fields["raw"].([]byte)[0]; got != 'p' {
		t.Fatalf("original byte slice mutated: %c", got)
	}
	if got := orig.Fields["names"].([]string)[0]; got != "x" {
		t.Fatalf("original string slice mutated: %v", got)
	}

	if clone.ID != orig.ID || clone.Origin != orig.Origin || !clone.Timestamp.Equal(orig.Timestamp) {
		t.Fatalf("metadata not carried over: %+v vs %+v", clone, orig)
	}
}

func TestEventCloneNil(t *testing.T) {
	var e *Event
	if e.Clone() != nil {
		t.Fatal("clone of nil should be nil")
	}
}

func TestEventGet(t *testing.T) {
	e := NewEvent(map[string]any{
		"response": map[string]any{
			"status": 200,
		},
		"msg": "a",
	})

	if v, ok := e.Get("response.status"); !ok || v != 200 {
		t.Fatalf("Get(response.status) = %v, %v", v, ok)
	}
	if v, ok := e.Get("msg"); !ok || v != "a" {
		t.Fatalf("Get(msg) = %v, %v", v, ok)
	}
	if _, ok := e.Get("response.missing"); ok {
		t.Fatal("expected miss on absent leaf")
	}
	if _, ok := e.Get("msg.deeper"); ok {
		t.Fatal("expected miss when traversing through a scalar")
	}
	if _, ok := e.Get(""); ok {
		t.Fatal("expected miss on empty path")
	}
}
