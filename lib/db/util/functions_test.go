package util

import "testing"

func TestHashRecordKey(t *testing.T) {
	seed := GenerateSeed()
	pairs := [][2]string{{"Events", "a"}, {"", ""}, {"ab", "c"}, {"a", "bc"}, {"Cities", "Oregon:Salem"}}
	for _, p := range pairs {
		if got, want := HashRecordKey(p[0], p[1], seed), HashString(p[0]+"\x00"+p[1], seed); got != want {
			t.Errorf("HashRecordKey(%q, %q) = %d, want %d", p[0], p[1], got, want)
		}
	}
	if HashRecordKey("ab", "c", seed) == HashRecordKey("a", "bc", seed) {
		t.Errorf("expected different hashes for (ab,c) and (a,bc)")
	}
}

func TestNodeID(t *testing.T) {
	if NodeID("node-1") != NodeID("node-1") {
		t.Fatalf("NodeID is not deterministic")
	}
	if NodeID("node-1") == NodeID("node-2") {
		t.Errorf("expected different ids for different names")
	}
}
