// anidb identifies video files against the AniDB UDP API: hashes each
// argument (ed2k), resolves it through one paced link, and caches the
// answers locally. ANIDB_SEARCH=name searches the titles dump instead.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	"dev.c0redev.anidb/internal/cache"
	"dev.c0redev.anidb/internal/ed2k"
	"dev.c0redev.anidb/internal/link"
	"dev.c0redev.anidb/internal/titles"
	"dev.c0redev.anidb/internal/wire"
)

// FILE masks: fid|aid|eid|gid from the file part, romaji name and epno
// from the anime part.
const (
	fileMask  = "7000000000"
	animeMask = "00808000"
)

func main() {
	if name := os.Getenv("ANIDB_SEARCH"); name != "" {
		searchTitles(name)
		return
	}
	files := os.Args[1:]
	if len(files) == 0 {
		log.Fatal("usage: anidb FILE... (or ANIDB_SEARCH=name anidb)")
	}

	user := os.Getenv("ANIDB_USER")
	if user == "" {
		log.Fatal("ANIDB_USER required")
	}
	pass := os.Getenv("ANIDB_PASS")
	if pass == "" {
		fmt.Fprintf(os.Stderr, "AniDB password for %s: ", user)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil || len(b) == 0 {
			log.Fatal("password required")
		}
		pass = string(b)
	}

	db, err := cache.Open(cachePath())
	if err != nil {
		log.Fatal("cache:", err)
	}
	defer db.Close()

	var lk *link.Link // dialed on first cache miss
	defer func() {
		if lk != nil {
			lk.Close()
		}
	}()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("interrupted, logging out")
		if lk != nil {
			lk.Close()
		}
		os.Exit(1)
	}()

	for _, path := range files {
		hash, size, err := ed2k.HashFile(path)
		if err != nil {
			log.Println("hash:", err)
			continue
		}
		if f, err := db.FileByHash(hash, size); err == nil && f != nil {
			printFile(path, f, true)
			continue
		}
		if lk == nil {
			lk, err = newLink(user, pass)
			if err != nil {
				log.Fatal(err)
			}
		}
		f, err := lookupFile(lk, hash, size)
		if err != nil {
			log.Printf("%s: %v", path, err)
			continue
		}
		if err := db.SaveFile(f); err != nil {
			log.Println("cache save:", err)
		}
		printFile(path, f, false)
	}
}

func newLink(user, pass string) (*link.Link, error) {
	cfg := link.Config{Username: user, Password: pass, Host: os.Getenv("ANIDB_HOST")}
	if s := os.Getenv("ANIDB_PORT"); s != "" {
		cfg.Port, _ = strconv.Atoi(s)
	}
	if s := os.Getenv("ANIDB_LOCAL_PORT"); s != "" {
		cfg.LocalPort, _ = strconv.Atoi(s)
	}
	if s := os.Getenv("ANIDB_TIMEOUT"); s != "" {
		if sec, _ := strconv.Atoi(s); sec > 0 {
			cfg.Timeout = time.Duration(sec) * time.Second
		}
	}
	return link.New(cfg)
}

func lookupFile(lk *link.Link, hash string, size int64) (*cache.File, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	resp, err := lk.Do(ctx, wire.FileByHash(size, hash, fileMask, animeMask))
	if err != nil {
		return nil, err
	}
	if resp.Code != 220 {
		return nil, fmt.Errorf("server: %d %s", resp.Code, resp.Text)
	}
	fields := resp.Fields(0)
	if len(fields) < 4 {
		return nil, fmt.Errorf("short FILE reply: %q", resp.Lines)
	}
	f := &cache.File{ED2K: hash, Size: size}
	f.FID, _ = strconv.Atoi(fields[0])
	f.AID, _ = strconv.Atoi(fields[1])
	f.EID, _ = strconv.Atoi(fields[2])
	f.GID, _ = strconv.Atoi(fields[3])
	if len(fields) > 4 {
		f.AnimeName = fields[4]
	}
	if len(fields) > 5 {
		f.EpNo = fields[5]
	}
	return f, nil
}

func printFile(path string, f *cache.File, cached bool) {
	src := ""
	if cached {
		src = " (cached)"
	}
	name := f.AnimeName
	if name == "" {
		name = "aid " + strconv.Itoa(f.AID)
	}
	fmt.Printf("%s: %s ep %s [fid %d]%s\n", filepath.Base(path), name, f.EpNo, f.FID, src)
}

func searchTitles(name string) {
	path := os.Getenv("ANIDB_TITLES")
	if path == "" {
		path = filepath.Join(cacheDir(), "anime-titles.dat.gz")
	}
	if err := titles.Update(path, "", nil, titles.MaxAge); err != nil {
		log.Println("titles update:", err)
	}
	ix, err := titles.Load(path)
	if err != nil {
		log.Fatal("titles:", err)
	}
	hits := ix.Search(name, 20)
	if len(hits) == 0 {
		log.Fatal("no matches for ", strconv.Quote(name))
	}
	for _, t := range hits {
		fmt.Printf("%d\t%s\t%s\n", t.AID, t.Lang, t.Name)
	}
}

func cacheDir() string {
	if d := os.Getenv("ANIDB_CACHE_DIR"); d != "" {
		return d
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "anidb")
}

func cachePath() string {
	dir := cacheDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Println("cache dir:", err)
		return filepath.Join(".", "anidb-cache.db")
	}
	return filepath.Join(dir, "cache.db")
}
