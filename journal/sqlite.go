package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"nyiyui.ca/hato/shingo"
	"nyiyui.ca/hato/shingo/tal/layout"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	seq     INTEGER PRIMARY KEY,
	time    TEXT    NOT NULL,
	kind    TEXT    NOT NULL,
	train   INTEGER NOT NULL,
	block   INTEGER NOT NULL,
	detail  TEXT    NOT NULL,
	request TEXT    NOT NULL
)`

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// ":memory:" is per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Append(es []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO entries (seq, time, kind, train, block, detail, request) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range es {
		_, err = stmt.Exec(e.Seq, e.Time.UTC().Format(time.RFC3339Nano), string(e.Kind), int(e.Train), int(e.Block), e.Detail, e.Request.String())
		if err != nil {
			return fmt.Errorf("insert %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Since(seq uint64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT seq, time, kind, train, block, detail, request FROM entries WHERE seq > ? ORDER BY seq LIMIT ?`, seq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Entry{}
	for rows.Next() {
		var e Entry
		var t, kind, request string
		var train, block int
		err = rows.Scan(&e.Seq, &t, &kind, &train, &block, &e.Detail, &request)
		if err != nil {
			return nil, err
		}
		e.Time, err = time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, fmt.Errorf("entry %d: parse time: %w", e.Seq, err)
		}
		e.Request, err = uuid.Parse(request)
		if err != nil {
			return nil, fmt.Errorf("entry %d: parse request: %w", e.Seq, err)
		}
		e.Kind = Kind(kind)
		e.Train = shingo.TrainID(train)
		e.Block = layout.BlockI(block)
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }

// Open opens the store for driver ("memory", "buntdb" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "memory":
		return new(Memory), nil
	case "buntdb":
		return OpenBunt(path)
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", driver)
	}
}
