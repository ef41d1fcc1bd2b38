package packet

import (
	"testing"
)

func TestDecodeClassifiesKind(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
	}{
		{"data", KindData},
		{"sync", KindSync},
		{"uart", KindUart},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := Encode(12345, -42, c.kind)
			stamp, data, kind, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if stamp != 12345 || data != -42 || kind != c.kind {
				t.Fatalf("got (%d, %d, %s), want (12345, -42, %s)", stamp, data, kind, c.kind)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	kinds := []Kind{KindData, KindSync, KindUart}
	stamps := []uint32{0, 1, 0xFFFFFFFF, 1 << 20}
	datas := []int32{0, -1, 1, -2147483648, 2147483647}
	for _, k := range kinds {
		for _, s := range stamps {
			for _, d := range datas {
				b := Encode(s, d, k)
				if Encode(decodeOrFatal(t, b)) != b {
					t.Fatalf("round trip mismatch for stamp=%d data=%d kind=%s", s, d, k)
				}
			}
		}
	}
}

func decodeOrFatal(t *testing.T, b [Length]byte) (uint32, int32, Kind) {
	t.Helper()
	s, d, k, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return s, d, k
}

func TestDecodeBadHeader(t *testing.T) {
	b := Encode(1, 1, KindData)
	b[0] = 0xFF
	if _, _, _, err := Decode(b); err == nil {
		t.Fatal("expected header error")
	}
}

func TestDecodeBadFooter(t *testing.T) {
	b := Encode(1, 1, KindData)
	b[10], b[11] = 0x00, 0x00
	if _, _, _, err := Decode(b); err == nil {
		t.Fatal("expected footer error")
	}
}

// FuzzDecode ensures the decoder never panics on arbitrary 12-byte input.
func FuzzDecode(f *testing.F) {
	seed1 := Encode(1, 1, KindData)
	seed2 := Encode(0xFFFFFFFF, -1, KindSync)
	f.Add(seed1[:])
	f.Add(seed2[:])
	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) != Length {
			return
		}
		var b [Length]byte
		copy(b[:], data)
		_, _, _, _ = Decode(b)
	})
}
