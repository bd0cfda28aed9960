// Package indexdb keeps a SQLite ledger of generated chunk digests so runs
// can be compared for determinism. It is an index, not a world store.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"terragen.ai/internal/catalogs"
	"terragen.ai/internal/terrain/coord"
	"terragen.ai/internal/terrain/pipeline"
	"terragen.ai/internal/terrain/profile"
	"terragen.ai/internal/tuning"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropChunk    atomic.Uint64
	dropFault    atomic.Uint64
	writtenChunk atomic.Uint64
	writeErrors  atomic.Uint64
}

// Stats is a point-in-time view of the writer queue.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropChunkTotal    uint64
	DropFaultTotal    uint64
	WrittenChunkTotal uint64
	WriteErrorTotal   uint64
}

type reqKind int

const (
	reqChunk reqKind = iota + 1
	reqFault
)

type req struct {
	kind reqKind

	chunk chunkRow
	fault faultRow
}

type chunkRow struct {
	Seed          int64
	ProfileDigest string
	X, Z          int
	Digest        string
	Structures    string
	GeneratedAt   string
}

type faultRow struct {
	Seed       int64
	X, Z       int
	Stage      string
	Err        string
	RecordedAt string
}

// ChunkKey identifies one ledger row.
type ChunkKey struct {
	Seed          int64
	ProfileDigest string
	Coord         coord.ChunkCoord
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 262144)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS profiles (
			digest TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			dims_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			seed INTEGER NOT NULL,
			profile_digest TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			digest TEXT NOT NULL,
			structures_json TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			PRIMARY KEY (seed, profile_digest, cx, cz)
		);`,
		`CREATE TABLE IF NOT EXISTS faults (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seed INTEGER NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			stage TEXT NOT NULL,
			error TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_faults_pos ON faults(cx, cz);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Deliver queues the chunk's digest for recording. A full queue drops the
// row and counts it; generation is never stalled by the ledger.
func (s *SQLiteIndex) Deliver(res *pipeline.ChunkResult) error {
	if s == nil || s.closed.Load() || res == nil {
		return nil
	}
	structures, err := json.Marshal(res.Structures)
	if err != nil {
		return fmt.Errorf("index chunk %s: %w", res.Coord, err)
	}
	if res.Structures == nil {
		structures = []byte("[]")
	}
	r := chunkRow{
		Seed:          res.Seed,
		ProfileDigest: res.ProfileDigest,
		X:             res.Coord.X,
		Z:             res.Coord.Z,
		Digest:        res.Digest(),
		Structures:    string(structures),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqChunk, chunk: r}:
	default:
		s.dropChunk.Add(1)
	}
	return nil
}

// RecordFault satisfies pipeline.FaultRecorder.
func (s *SQLiteIndex) RecordFault(f *pipeline.GenerationFault) {
	if s == nil || s.closed.Load() || f == nil {
		return
	}
	r := faultRow{
		Seed:       f.Seed,
		X:          f.Coord.X,
		Z:          f.Coord.Z,
		Stage:      f.Stage.String(),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if f.Err != nil {
		r.Err = f.Err.Error()
	}
	select {
	case s.ch <- req{kind: reqFault, fault: r}:
	default:
		s.dropFault.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropChunkTotal:    s.dropChunk.Load(),
		DropFaultTotal:    s.dropFault.Load(),
		WrittenChunkTotal: s.writtenChunk.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

// UpsertProfile records the profile a run used, keyed by its digest.
func (s *SQLiteIndex) UpsertProfile(ctx context.Context, p *profile.Profile) error {
	if s == nil {
		return nil
	}
	dims, err := json.Marshal(p.Dimensions())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO profiles(digest,name,source,dims_json,updated_at) VALUES(?,?,?,?,?)`,
		p.Digest(), p.Name(), p.Source(), string(dims), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// UpsertCatalogs records the host block catalog, schematics and runtime
// tuning a run used, each with its digest.
func (s *SQLiteIndex) UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	{
		defs := make([]catalogs.BlockDef, 0, len(cats.Blocks.Defs))
		for _, d := range cats.Blocks.Defs {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		b, err := json.Marshal(defs)
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
	}
	if b, err := json.Marshal(cats.Blocks.Palette); err == nil {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	{
		schems := make([]catalogs.SchematicDef, 0, len(cats.Schematics.ByID))
		for _, sd := range cats.Schematics.ByID {
			schems = append(schems, sd)
		}
		sort.Slice(schems, func(i, j int) bool { return schems[i].ID < schems[j].ID })
		b, err := json.Marshal(schems)
		if err != nil {
			return err
		}
		rows = append(rows, kv{name: "schematics", digest: cats.Schematics.Digest, json: b})
	}
	{
		b, err := json.Marshal(tune)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.name, r.digest, string(r.json), now); err != nil {
			return fmt.Errorf("catalog %s: %w", r.name, err)
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the digest recorded for one catalog row.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name=?`, name).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}

// LookupDigest returns the recorded digest for one chunk. Rows still in the
// writer queue are not visible yet.
func (s *SQLiteIndex) LookupDigest(ctx context.Context, k ChunkKey) (string, bool, error) {
	var digest string
	err := s.db.QueryRowContext(ctx,
		`SELECT digest FROM chunks WHERE seed=? AND profile_digest=? AND cx=? AND cz=?`,
		k.Seed, k.ProfileDigest, k.Coord.X, k.Coord.Z,
	).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}

// Digests loads every recorded digest for one seed and profile.
func (s *SQLiteIndex) Digests(ctx context.Context, seed int64, profileDigest string) (map[coord.ChunkCoord]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cx,cz,digest FROM chunks WHERE seed=? AND profile_digest=?`, seed, profileDigest)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[coord.ChunkCoord]string{}
	for rows.Next() {
		var (
			c      coord.ChunkCoord
			digest string
		)
		if err := rows.Scan(&c.X, &c.Z, &digest); err != nil {
			return nil, err
		}
		out[c] = digest
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertChunk, _ := s.db.Prepare(`INSERT OR REPLACE INTO chunks(seed,profile_digest,cx,cz,digest,structures_json,generated_at) VALUES(?,?,?,?,?,?,?)`)
	insertFault, _ := s.db.Prepare(`INSERT INTO faults(seed,cx,cz,stage,error,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertChunk != nil {
			_ = insertChunk.Close()
		}
		if insertFault != nil {
			_ = insertFault.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrors.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// An idle queue also commits, so readers see rows without waiting for
	// the batch to fill.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqChunk:
			c := r.chunk
			if insertChunk == nil {
				break
			}
			if _, err := tx.Stmt(insertChunk).Exec(c.Seed, c.ProfileDigest, c.X, c.Z, c.Digest, c.Structures, c.GeneratedAt); err != nil {
				rollback()
				continue
			}
			opCount++
			s.writtenChunk.Add(1)

		case reqFault:
			f := r.fault
			if insertFault == nil {
				break
			}
			if _, err := tx.Stmt(insertFault).Exec(f.Seed, f.X, f.Z, f.Stage, f.Err, f.RecordedAt); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
