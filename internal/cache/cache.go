// Package cache persists resolved API lookups so repeated runs do not
// burn request budget against the flood-control limits.
package cache

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the local sqlite lookup cache.
type DB struct {
	*sql.DB
}

// Open opens the cache at path, running migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ed2k TEXT NOT NULL,
			size INTEGER NOT NULL,
			fid INTEGER NOT NULL,
			aid INTEGER,
			eid INTEGER,
			gid INTEGER,
			anime_name TEXT,
			ep_no TEXT,
			fetched_at TEXT NOT NULL,
			UNIQUE(ed2k, size)
		);
		CREATE INDEX IF NOT EXISTS idx_files_aid ON files(aid);
	`)
	return err
}

// File: one cached FILE lookup, keyed by (ed2k, size).
type File struct {
	ED2K      string
	Size      int64
	FID       int
	AID       int
	EID       int
	GID       int
	AnimeName string
	EpNo      string
	FetchedAt time.Time
}

// SaveFile inserts or refreshes a lookup result.
func (db *DB) SaveFile(f *File) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.Exec(`INSERT INTO files (ed2k, size, fid, aid, eid, gid, anime_name, ep_no, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ed2k, size) DO UPDATE SET
			fid=excluded.fid, aid=excluded.aid, eid=excluded.eid, gid=excluded.gid,
			anime_name=excluded.anime_name, ep_no=excluded.ep_no, fetched_at=excluded.fetched_at`,
		f.ED2K, f.Size, f.FID, f.AID, f.EID, f.GID, f.AnimeName, f.EpNo, now)
	return err
}

// FileByHash returns the cached lookup or nil on miss.
func (db *DB) FileByHash(ed2k string, size int64) (*File, error) {
	var f File
	var t string
	err := db.QueryRow(`SELECT ed2k, size, fid, COALESCE(aid,0), COALESCE(eid,0), COALESCE(gid,0),
		COALESCE(anime_name,''), COALESCE(ep_no,''), fetched_at FROM files WHERE ed2k = ? AND size = ?`,
		ed2k, size).Scan(&f.ED2K, &f.Size, &f.FID, &f.AID, &f.EID, &f.GID, &f.AnimeName, &f.EpNo, &t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.FetchedAt, _ = time.Parse(time.RFC3339, t)
	return &f, nil
}

// FilesByAnime returns cached files for an anime id.
func (db *DB) FilesByAnime(aid int) ([]File, error) {
	rows, err := db.Query(`SELECT ed2k, size, fid, COALESCE(aid,0), COALESCE(eid,0), COALESCE(gid,0),
		COALESCE(anime_name,''), COALESCE(ep_no,''), fetched_at FROM files WHERE aid = ?`, aid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []File
	for rows.Next() {
		var f File
		var t string
		if err := rows.Scan(&f.ED2K, &f.Size, &f.FID, &f.AID, &f.EID, &f.GID, &f.AnimeName, &f.EpNo, &t); err != nil {
			return nil, err
		}
		f.FetchedAt, _ = time.Parse(time.RFC3339, t)
		list = append(list, f)
	}
	return list, rows.Err()
}

// Prune deletes entries fetched before cutoff; returns how many.
func (db *DB) Prune(cutoff time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM files WHERE fetched_at < ?", cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
