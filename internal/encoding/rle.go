package encoding

import (
	"encoding/binary"
	"fmt"
)

// AppendRLE appends palette ids to dst as uvarint (id, run_len) pairs.
func AppendRLE(dst []byte, ids []uint16) []byte {
	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b && run < 1<<31; j++ {
			run++
		}
		dst = binary.AppendUvarint(dst, uint64(b))
		dst = binary.AppendUvarint(dst, uint64(run))
		i += run
	}
	return dst
}

// DecodeRLE expands pairs written by AppendRLE. It fails rather than grow
// past limit ids.
func DecodeRLE(raw []byte, limit int) ([]uint16, error) {
	out := make([]uint16, 0, min(limit, 1<<16))
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("block id too large: %d", b)
		}
		if run == 0 || run > uint64(limit-len(out)) {
			return nil, fmt.Errorf("run of %d at %d exceeds limit %d", run, i, limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	return out, nil
}

// AppendVarints appends zigzag varints.
func AppendVarints(dst []byte, vs []int32) []byte {
	for _, v := range vs {
		dst = binary.AppendVarint(dst, int64(v))
	}
	return dst
}

// DecodeVarints reads exactly n zigzag varints and returns the bytes used.
func DecodeVarints(raw []byte, n int) ([]int32, int, error) {
	out := make([]int32, n)
	off := 0
	for k := 0; k < n; k++ {
		v, m := binary.Varint(raw[off:])
		if m <= 0 {
			return nil, 0, fmt.Errorf("bad varint at %d", off)
		}
		if v < -1<<31 || v > 1<<31-1 {
			return nil, 0, fmt.Errorf("value %d at %d overflows int32", v, off)
		}
		out[k] = int32(v)
		off += m
	}
	return out, off, nil
}
