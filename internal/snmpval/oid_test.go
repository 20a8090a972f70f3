package snmpval

import "testing"

func TestOIDCompare(t *testing.T) {
	cases := []struct {
		a, b OID
		want int
	}{
		{OID{1, 2, 3}, OID{1, 2, 3}, 0},
		{OID{1, 2, 3}, OID{1, 2, 4}, -1},
		{OID{1, 2, 4}, OID{1, 2, 3}, 1},
		{OID{1, 2}, OID{1, 2, 0}, -1},
		{OID{1, 2, 0}, OID{1, 2}, 1},
	}
	for _, c := range cases {
		if got := c.a.Compare(c.b); got != c.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestOIDAppendDoesNotAliasPrefix(t *testing.T) {
	prefix := OID{1, 3, 6, 1}
	a := prefix.Append(5, 1)
	b := prefix.Append(5, 2)
	if a[len(a)-1] == b[len(b)-1] {
		t.Fatalf("expected distinct suffixes, got %v and %v", a, b)
	}
	if len(prefix) != 4 {
		t.Fatalf("Append mutated the shared prefix: %v", prefix)
	}
}
