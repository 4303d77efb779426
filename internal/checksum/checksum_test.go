package checksum

import (
	"strings"
	"testing"
)

func TestSumKnownVector(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum(abc) = %s, want %s", got, want)
	}
}

func TestKeySeparatesOperations(t *testing.T) {
	a := Key("category", "same content")
	b := Key("summary", "same content")
	if a == b {
		t.Fatal("keys for different operations must differ")
	}
	if !strings.HasPrefix(a, "ai:category:") {
		t.Errorf("key = %q, want ai:category: prefix", a)
	}
	if Key("category", "same content") != a {
		t.Error("key must be deterministic")
	}
}
