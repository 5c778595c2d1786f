package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Preferences are the per-user call settings that survive restarts.
type Preferences struct {
	UserID      string
	RingtoneURL string
	LoopStart   time.Duration
	LoopEnd     time.Duration
	Volume      float64
	Dnd         bool
}

// DefaultPreferences returns the out-of-the-box settings for a user.
func DefaultPreferences(userID string) Preferences {
	return Preferences{UserID: userID, Volume: 1.0}
}

// Store persists call preferences in a local SQLite database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the settings database in the given directory.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "call-settings.db")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			user_id       TEXT PRIMARY KEY,
			ringtone_url  TEXT NOT NULL DEFAULT '',
			loop_start_ms INTEGER NOT NULL DEFAULT 0,
			loop_end_ms   INTEGER NOT NULL DEFAULT 0,
			volume        REAL NOT NULL DEFAULT 1.0,
			dnd           INTEGER NOT NULL DEFAULT 0,
			updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create preferences table: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored preferences for userID, or the defaults if
// the user has never saved any.
func (s *Store) Load(userID string) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p       = Preferences{UserID: userID}
		startMS int64
		endMS   int64
		dnd     int
	)
	err := s.db.QueryRow(`
		SELECT ringtone_url, loop_start_ms, loop_end_ms, volume, dnd
		FROM preferences WHERE user_id = ?
	`, userID).Scan(&p.RingtoneURL, &startMS, &endMS, &p.Volume, &dnd)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultPreferences(userID), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}

	p.LoopStart = time.Duration(startMS) * time.Millisecond
	p.LoopEnd = time.Duration(endMS) * time.Millisecond
	p.Dnd = dnd != 0
	return p, nil
}

// Save upserts the preferences for p.UserID.
func (s *Store) Save(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dnd := 0
	if p.Dnd {
		dnd = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO preferences (user_id, ringtone_url, loop_start_ms, loop_end_ms, volume, dnd, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			ringtone_url  = excluded.ringtone_url,
			loop_start_ms = excluded.loop_start_ms,
			loop_end_ms   = excluded.loop_end_ms,
			volume        = excluded.volume,
			dnd           = excluded.dnd,
			updated_at    = CURRENT_TIMESTAMP
	`, p.UserID, p.RingtoneURL, p.LoopStart.Milliseconds(), p.LoopEnd.Milliseconds(), p.Volume, dnd)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Delete removes the stored preferences for userID.
func (s *Store) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM preferences WHERE user_id = ?`, userID)
	return err
}
