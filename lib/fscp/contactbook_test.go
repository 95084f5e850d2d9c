package fscp

import "testing"

func TestContactBook_LearnAndLookup(t *testing.T) {
	c := newContactBook()
	var hash [32]byte
	hash[0] = 0xAB

	if _, ok := c.lookup(hash); ok {
		t.Fatal("lookup() found an entry before learn()")
	}

	c.learn(hash, "203.0.113.5:12000")
	ep, ok := c.lookup(hash)
	if !ok {
		t.Fatal("lookup() found nothing after learn()")
	}
	if ep != "203.0.113.5:12000" {
		t.Errorf("lookup() = %q, want %q", ep, "203.0.113.5:12000")
	}
}

func TestContactRequest_RoundTrip(t *testing.T) {
	var h1, h2 [32]byte
	h1[0], h2[0] = 1, 2
	want := [][32]byte{h1, h2}

	encoded := encodeContactRequest(want)
	got, err := decodeContactRequest(encoded)
	if err != nil {
		t.Fatalf("decodeContactRequest() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("decodeContactRequest() returned %d hashes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hash[%d] = %x, want %x", i, got[i], want[i])
		}
	}
}

func TestContactRequest_Decode_RejectsTruncatedPayload(t *testing.T) {
	cases := map[string][]byte{
		"empty":           {},
		"missing hashes":  {0x00, 0x02},
		"short last hash": append([]byte{0x00, 0x01}, make([]byte, 16)...),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeContactRequest(payload); err == nil {
				t.Error("decodeContactRequest() accepted a truncated payload")
			}
		})
	}
}

func TestContact_RoundTrip(t *testing.T) {
	var h1, h2 [32]byte
	h1[0], h2[0] = 3, 4
	want := map[[32]byte]string{
		h1: "198.51.100.1:12000",
		h2: "198.51.100.2:12000",
	}

	encoded := encodeContact(want)
	got, err := decodeContact(encoded)
	if err != nil {
		t.Fatalf("decodeContact() error = %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("decodeContact() returned %d entries, want %d", len(got), len(want))
	}
	for hash, ep := range want {
		if got[hash] != ep {
			t.Errorf("entry[%x] = %q, want %q", hash, got[hash], ep)
		}
	}
}

func TestContact_Decode_RejectsTruncatedPayload(t *testing.T) {
	if _, err := decodeContact([]byte{0x00, 0x01}); err == nil {
		t.Error("decodeContact() accepted a payload with a declared entry but no bytes for it")
	}
}
