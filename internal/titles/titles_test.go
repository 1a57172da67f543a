package titles

import (
	"bytes"
	"compress/gzip"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleDat = `# anime titles dump
# aid|type|lang|title
1|1|x-jat|Seikai no Monshou
1|4|en|Crest of the Stars
1|2|en|CotS
17|1|x-jat|Ai no Kusabi
17|4|ja|` + "間の業" + `
`

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeDump(t *testing.T, s string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anime-titles.dat.gz")
	if err := os.WriteFile(path, gzipped(t, s), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	ix, err := Load(writeDump(t, sampleDat))
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 5 {
		t.Fatalf("Len = %d, want 5", ix.Len())
	}
	got := ix.ByAID(1)
	if len(got) != 3 || got[0].Name != "Seikai no Monshou" || got[0].Type != TypePrimary {
		t.Fatalf("ByAID(1): %+v", got)
	}
}

func TestLoadRejectsBadDump(t *testing.T) {
	// Not gzip at all.
	path := filepath.Join(t.TempDir(), "bad.dat.gz")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrBadDump) {
		t.Fatalf("plain text: %v", err)
	}
	// Valid gzip, no usable rows.
	if _, err := Load(writeDump(t, "# only comments\n")); !errors.Is(err, ErrBadDump) {
		t.Fatalf("empty dump: %v", err)
	}
}

func TestSearch(t *testing.T) {
	ix, err := Load(writeDump(t, sampleDat))
	if err != nil {
		t.Fatal(err)
	}
	if got := ix.Search("SEIKAI", 0); len(got) != 1 || got[0].AID != 1 {
		t.Fatalf("case-insensitive search: %+v", got)
	}
	if got := ix.Search("o", 2); len(got) != 2 {
		t.Fatalf("max not honored: %+v", got)
	}
	if got := ix.Search("no such show", 0); len(got) != 0 {
		t.Fatalf("expected no hits: %+v", got)
	}
}

func TestUpdate(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(gzipped(t, sampleDat))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "dumps", "anime-titles.dat.gz")
	if err := Update(path, srv.URL, srv.Client(), MaxAge); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	// Fresh file: no second download.
	if err := Update(path, srv.URL, srv.Client(), MaxAge); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("fresh dump refetched, hits = %d", hits)
	}

	// Stale file gets replaced.
	old := time.Now().Add(-2 * MaxAge)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if err := Update(path, srv.URL, srv.Client(), MaxAge); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Fatalf("stale dump not refetched, hits = %d", hits)
	}
}

func TestUpdateKeepsOldDumpOnBadDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a dump"))
	}))
	defer srv.Close()

	path := writeDump(t, sampleDat)
	old := time.Now().Add(-2 * MaxAge)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}
	if err := Update(path, srv.URL, srv.Client(), MaxAge); err == nil {
		t.Fatal("expected verification failure")
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("old dump should survive: %v", err)
	}
}
