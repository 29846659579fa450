package bitfield

import "testing"

type pteFlags struct {
	Present  bool   `bitfield:",1"`
	Writable bool   `bitfield:",1"`
	User     bool   `bitfield:",1"`
	Reserved uint32 `bitfield:",29"`
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []pteFlags{
		{Present: false, Writable: false, User: false},
		{Present: true, Writable: false, User: false},
		{Present: true, Writable: true, User: false},
		{Present: true, Writable: true, User: true, Reserved: 0x1FFFFFFF},
	}

	for _, tc := range cases {
		packed, err := Pack(tc, &Config{NumBits: 32})
		if err != nil {
			t.Fatalf("Pack() error = %v", err)
		}
		var got pteFlags
		if err := Unpack(packed, &got, &Config{NumBits: 32}); err != nil {
			t.Fatalf("Unpack() error = %v", err)
		}
		if got != tc {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, tc)
		}
	}
}

func TestPackOverflow(t *testing.T) {
	type tooWide struct {
		V uint32 `bitfield:",2"`
	}
	_, err := Pack(tooWide{V: 7}, &Config{NumBits: 8})
	if err == nil {
		t.Fatal("expected overflow error")
	}
}
