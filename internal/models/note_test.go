package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTagsRoundTrip(t *testing.T) {
	in := Tags{"go", "графы", "заметки"}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var out Tags
	if err := out.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestTagsScanEmptyValues(t *testing.T) {
	for _, src := range []any{nil, "", []byte(""), "null", "not json", []byte("{}")} {
		var tags Tags
		if err := tags.Scan(src); err != nil {
			t.Fatalf("Scan(%v): %v", src, err)
		}
		if tags == nil || len(tags) != 0 {
			t.Errorf("Scan(%v) = %#v, want empty list", src, tags)
		}
	}
}

func TestTagsNilMarshalsAsEmptyArray(t *testing.T) {
	b, err := json.Marshal(struct {
		Tags Tags `json:"tags"`
	}{})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"tags":[]}` {
		t.Errorf("json = %s", b)
	}
}

func TestClampImportance(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 5: 5, 10: 10, 42: 10}
	for in, want := range cases {
		if got := ClampImportance(in); got != want {
			t.Errorf("ClampImportance(%d) = %d, want %d", in, got, want)
		}
	}
}
