package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Preferences is a string key-value store in the preferences table.
// It satisfies sleeptimer.Preferences.
type Preferences struct {
	db *DB
}

// NewPreferences creates a preference store over an opened database.
func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db}
}

// Get returns the stored value and whether the key exists.
func (p *Preferences) Get(key string) (string, bool, error) {
	db := p.db.DB()
	if db == nil {
		return "", false, errNotOpen
	}

	var value string
	err := db.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (p *Preferences) Set(key, value string) error {
	db := p.db.DB()
	if db == nil {
		return errNotOpen
	}

	_, err := db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// GetInt returns def when the key is missing.
func (p *Preferences) GetInt(key string, def int) (int, error) {
	value, ok, err := p.Get(key)
	if err != nil || !ok {
		return def, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("preference %s is not a number: %q", key, value)
	}
	return n, nil
}

func (p *Preferences) SetInt(key string, value int) error {
	return p.Set(key, strconv.Itoa(value))
}
