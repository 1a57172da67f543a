// Package titles maintains a local copy of the AniDB anime-titles dump
// and answers name lookups from it, so the UDP API is not queried for
// things the daily dump already answers.
package titles

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DumpURL is the daily titles export.
const DumpURL = "http://anidb.net/api/anime-titles.dat.gz"

// MaxAge is how long a downloaded dump is considered fresh.
const MaxAge = 7 * 24 * time.Hour

var ErrBadDump = errors.New("titles dump failed verification")

// Title types from the dump.
const (
	TypePrimary  = 1
	TypeSynonym  = 2
	TypeShort    = 3
	TypeOfficial = 4
)

// Title is one row of the dump: aid|type|language|title.
type Title struct {
	AID  int
	Type int
	Lang string
	Name string
}

// Index holds a loaded dump.
type Index struct {
	titles []Title
}

// Load reads a gzipped titles dat file.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Index, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDump, err)
	}
	defer zr.Close()
	ix := &Index{}
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		aid, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		typ, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		ix.titles = append(ix.titles, Title{AID: aid, Type: typ, Lang: parts[2], Name: parts[3]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDump, err)
	}
	if len(ix.titles) == 0 {
		return nil, ErrBadDump
	}
	return ix, nil
}

// Len returns the number of loaded titles.
func (ix *Index) Len() int { return len(ix.titles) }

// Search returns up to max titles containing name, case-insensitive.
func (ix *Index) Search(name string, max int) []Title {
	name = strings.ToLower(name)
	var out []Title
	for _, t := range ix.titles {
		if strings.Contains(strings.ToLower(t.Name), name) {
			out = append(out, t)
			if max > 0 && len(out) >= max {
				break
			}
		}
	}
	return out
}

// ByAID returns every title of one anime.
func (ix *Index) ByAID(aid int) []Title {
	var out []Title
	for _, t := range ix.titles {
		if t.AID == aid {
			out = append(out, t)
		}
	}
	return out
}

// Update downloads the dump to path unless the file there is younger
// than maxAge. The download lands in a temp file and replaces the old
// dump only after it parses.
func Update(path, url string, client *http.Client, maxAge time.Duration) error {
	if url == "" {
		url = DumpURL
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if st, err := os.Stat(path); err == nil && maxAge > 0 && time.Since(st.ModTime()) < maxAge {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("titles fetch: %d", resp.StatusCode)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".anime-titles-*.dat.gz")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if _, err := Load(tmp.Name()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
