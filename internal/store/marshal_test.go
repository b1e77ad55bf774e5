package store

import (
	"testing"

	"github.com/sergheinarushev/realworld-app/internal/harness"
)

func TestMarshalErrors_Nil(t *testing.T) {
	got, err := marshalErrors(nil)
	if err != nil {
		t.Fatalf("marshalErrors() failed: %v", err)
	}
	if got != "[]" {
		t.Errorf("marshalErrors(nil) = %q, want %q", got, "[]")
	}
}

func TestMarshalTrace_NoHTMLEscaping(t *testing.T) {
	trace := []harness.TraceEvent{
		{Seq: 1, Method: "GET", Path: "/users?q=a&limit=5", Status: 200},
	}
	got, err := marshalTrace(trace)
	if err != nil {
		t.Fatalf("marshalTrace() failed: %v", err)
	}

	want := `[{"seq":1,"method":"GET","path":"/users?q=a&limit=5","status":200}]`
	if got != want {
		t.Errorf("marshalTrace() = %q, want %q", got, want)
	}
}

func TestUnmarshalTrace_Empty(t *testing.T) {
	for _, data := range []string{"", "[]"} {
		trace, err := unmarshalTrace(data)
		if err != nil {
			t.Fatalf("unmarshalTrace(%q) failed: %v", data, err)
		}
		if trace == nil || len(trace) != 0 {
			t.Errorf("unmarshalTrace(%q) = %#v, want empty non-nil", data, trace)
		}
	}
}

func TestUnmarshalErrors_Malformed(t *testing.T) {
	if _, err := unmarshalErrors("{not json"); err == nil {
		t.Error("expected error for malformed errors JSON")
	}
}

func TestMarshalErrors_RoundTrip(t *testing.T) {
	in := []string{"Assertion failed: status\n  Expected: <200>\n"}
	data, err := marshalErrors(in)
	if err != nil {
		t.Fatalf("marshalErrors() failed: %v", err)
	}
	out, err := unmarshalErrors(data)
	if err != nil {
		t.Fatalf("unmarshalErrors() failed: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("round trip = %q, want %q", out, in)
	}
}
