// Package store keeps what must survive a restart in SQLite: the HomeKit
// accessory ids and the last state of every channel.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/thing"
)

// firstAccessoryID leaves id 1 to the HomeKit bridge accessory.
const firstAccessoryID = 2

const schema = `
CREATE TABLE IF NOT EXISTS accessory_ids (
	key TEXT PRIMARY KEY,
	id INTEGER NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS channel_states (
	channel TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS thing_statuses (
	thing TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	detail TEXT NOT NULL,
	description TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

type Store struct {
	db  *sql.DB
	now func() time.Time

	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AccessoryID returns the id stored for key, allocating the next free one
// on first use.
func (s *Store) AccessoryID(key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id uint64
	err := s.db.QueryRow(`SELECT id FROM accessory_ids WHERE key = ?`, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup accessory id: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("start transaction: %w", err)
	}
	var highest sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(id) FROM accessory_ids`).Scan(&highest); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("find max accessory id: %w", err)
	}
	id = firstAccessoryID
	if highest.Valid && uint64(highest.Int64) >= id {
		id = uint64(highest.Int64) + 1
	}
	if _, err := tx.Exec(`INSERT INTO accessory_ids (key, id) VALUES (?, ?)`, key, id); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert accessory id: %w", err)
	}
	return id, tx.Commit()
}

func (s *Store) SaveState(channel thing.ChannelUID, state thing.State) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO channel_states (channel, state, updated_at) VALUES (?, ?, ?)`,
		channel.String(), state.String(), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save state of %s: %w", channel, err)
	}
	return nil
}

// LastState is the text of the last state saved for channel.
func (s *Store) LastState(channel thing.ChannelUID) (string, time.Time, bool, error) {
	var state, updated string
	err := s.db.QueryRow(`SELECT state, updated_at FROM channel_states WHERE channel = ?`, channel.String()).Scan(&state, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("load state of %s: %w", channel, err)
	}
	at, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("invalid timestamp for %s: %w", channel, err)
	}
	return state, at, true, nil
}

func (s *Store) SaveStatus(uid thing.UID, info thing.StatusInfo) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO thing_statuses (thing, status, detail, description, updated_at) VALUES (?, ?, ?, ?, ?)`,
		string(uid), string(info.Status), string(info.Detail), info.Description, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save status of %s: %w", uid, err)
	}
	return nil
}

func (s *Store) LastStatus(uid thing.UID) (thing.StatusInfo, bool, error) {
	var info thing.StatusInfo
	var status, detail string
	err := s.db.QueryRow(`SELECT status, detail, description FROM thing_statuses WHERE thing = ?`, string(uid)).Scan(&status, &detail, &info.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return info, false, nil
	}
	if err != nil {
		return info, false, fmt.Errorf("load status of %s: %w", uid, err)
	}
	info.Status = thing.Status(status)
	info.Detail = thing.StatusDetail(detail)
	return info, true, nil
}

// StateUpdated and StatusUpdated let the store follow the runtime as a sink.
func (s *Store) StateUpdated(channel thing.ChannelUID, state thing.State) {
	if err := s.SaveState(channel, state); err != nil {
		log.Warn().Err(err).Msg("Failed to persist channel state")
	}
}

func (s *Store) StatusUpdated(uid thing.UID, info thing.StatusInfo) {
	if err := s.SaveStatus(uid, info); err != nil {
		log.Warn().Err(err).Msg("Failed to persist thing status")
	}
}
