package ed2k

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/md4"
)

// RFC 1320 MD4 test vectors; a file within one chunk hashes to its
// plain MD4.
func TestHashSingleChunk(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "31d6cfe0d16ae931b73c59d7e0c089c0"},
		{"abc", "a448017aaf21d8525fc10ae87aa6729d"},
		{"message digest", "d9130a8164549fe818874806e1c7014b"},
	}
	for _, c := range cases {
		got, err := Hash(strings.NewReader(c.in))
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("Hash(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestHashMultiChunk(t *testing.T) {
	// One full chunk plus one byte: hash = md4(md4(chunk) || md4(tail)).
	data := bytes.Repeat([]byte{0x42}, ChunkSize+1)

	h1 := md4.New()
	h1.Write(data[:ChunkSize])
	h2 := md4.New()
	h2.Write(data[ChunkSize:])
	outer := md4.New()
	outer.Write(h1.Sum(nil))
	outer.Write(h2.Sum(nil))
	want := hex.EncodeToString(outer.Sum(nil))

	got, err := Hash(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("multi-chunk: got %s want %s", got, want)
	}
}

func TestHashExactChunkBoundary(t *testing.T) {
	// Exactly one chunk stays a single-chunk hash.
	data := bytes.Repeat([]byte{0x01}, ChunkSize)
	h := md4.New()
	h.Write(data)
	want := hex.EncodeToString(h.Sum(nil))

	got, err := Hash(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("boundary: got %s want %s", got, want)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	hash, size, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if size != 3 || hash != "a448017aaf21d8525fc10ae87aa6729d" {
		t.Fatalf("HashFile: %s %d", hash, size)
	}
	if _, _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
