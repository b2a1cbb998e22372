package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
	"testing"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	goalMD5, _ := hex.DecodeString("0101fc798d94a730b0f0bf1bd2cc1959")
	goalSHA256, _ := hex.DecodeString("fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658")
	var w = new(bytes.Buffer)
	hw := NewHashWriter(w, map[string]hash.Hash{
		"md5":    md5.New(),
		"sha256": sha256.New(),
	})
	dohashtest(t, hw, input, goalMD5, goalSHA256)
	if w.String() != input {
		t.Errorf("Wrapped writer got %q, expected %q", w.String(), input)
	}

	hw2 := NewHashWriter(nil, map[string]hash.Hash{"md5": md5.New()})
	dohashtest(t, hw2, input, goalMD5, nil)
	if hw2.Sum("sha256") != nil {
		t.Errorf("Expected no sha256 from an md5 only writer")
	}
}

func dohashtest(t *testing.T, hw *HashWriter, input string, goalmd5, goalsha256 []byte) {
	hw.Write([]byte(input))
	h, ok := hw.Check("md5", goalmd5)
	if !ok {
		t.Fatalf("Got %v, expected %v\n", h, goalmd5)
	}
	h, ok = hw.Check("sha256", goalsha256)
	if !ok {
		t.Fatalf("Got %v, expected %v\n", h, goalsha256)
	}
}

func TestVerifyStreamHash(t *testing.T) {
	goal, _ := hex.DecodeString("5d41402abc4b2a76b9719d911017c592")
	var table = []struct {
		input string
		goal  []byte
		ok    bool
	}{
		{"hello", goal, true},
		{"hellO", goal, false},
		{"anything", nil, true},
	}
	for _, test := range table {
		ok, err := VerifyStreamHash(strings.NewReader(test.input), md5.New(), test.goal)
		if err != nil {
			t.Fatal(err)
		}
		if ok != test.ok {
			t.Errorf("%q: received %v, expected %v", test.input, ok, test.ok)
		}
	}
}
