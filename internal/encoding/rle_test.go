package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10, 65535)

	enc := AppendRLE(nil, in)
	out, err := DecodeRLE(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
	if len(enc) >= 2*len(in) {
		t.Fatalf("runs were not compressed: %d bytes for %d ids", len(enc), len(in))
	}
}

func TestRLE_RejectsOversizedRuns(t *testing.T) {
	enc := AppendRLE(nil, make([]uint16, 100))
	if _, err := DecodeRLE(enc, 99); err == nil {
		t.Fatalf("expected limit error")
	}
	if _, err := DecodeRLE([]byte{0x80}, 10); err == nil {
		t.Fatalf("expected truncated varint error")
	}
}

func TestVarints_RoundTrip(t *testing.T) {
	in := []int32{0, -1, 1, 300, -70000, 1<<31 - 1, -1 << 31}
	enc := AppendVarints([]byte{0xAA}, in)
	out, n, err := DecodeVarints(enc[1:], len(in))
	if err != nil {
		t.Fatalf("DecodeVarints: %v", err)
	}
	if n != len(enc)-1 {
		t.Fatalf("consumed %d of %d bytes", n, len(enc)-1)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}
