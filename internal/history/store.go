/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history keeps the most recent rendered texts together with the
// settings they were rendered with.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "postgen/internal/log"
	"postgen/internal/settings"
)

// Limit is the maximum number of entries kept.
const Limit = 100

var (
	ErrEmptyText = errors.New("history text is empty")
	ErrNotFound  = errors.New("history entry not found")
)

// Item is one history entry.
type Item struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	CreatedAt time.Time         `json:"createdAt"`
	Settings  settings.Settings `json:"settingsSnapshot"`
}

// Store persists history entries, newest first, capped at Limit.
type Store struct {
	db    *sql.DB
	d     dialect
	now   func() time.Time
	newID func() string
}

func newID() string { return uuid.NewString() }

// Driver reports the backing database kind.
func (s *Store) Driver() string { return s.d.name }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Add records text with a sanitized settings snapshot and trims the store to
// Limit entries. Text is trimmed; blank text is rejected with ErrEmptyText.
func (s *Store) Add(ctx context.Context, text string, snap settings.Settings) (Item, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Item{}, ErrEmptyText
	}
	it := Item{
		ID:        s.newID(),
		Text:      text,
		CreatedAt: s.now().UTC(),
		Settings:  settings.Sanitize(snap),
	}
	raw, err := json.Marshal(it.Settings)
	if err != nil {
		return Item{}, fmt.Errorf("encode settings: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, s.d.rebind(`INSERT INTO history(id, text, created_at, settings) VALUES(?, ?, ?, ?)`),
		it.ID, it.Text, it.CreatedAt.UnixNano(), string(raw)); err != nil {
		return Item{}, fmt.Errorf("insert history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM history WHERE id NOT IN (
		SELECT id FROM history ORDER BY created_at DESC, id DESC LIMIT ?)`), Limit); err != nil {
		return Item{}, fmt.Errorf("trim history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("commit: %w", err)
	}
	applog.WithComponent("history").Debug("entry added", slog.String("id", it.ID))
	return it, nil
}

// List returns at most Limit entries, newest first. Rows with blank text are
// skipped and snapshots are sanitized on the way out.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`SELECT id, text, created_at, settings FROM history ORDER BY created_at DESC, id DESC LIMIT ?`), Limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	items := make([]Item, 0, 16)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if it.Text == "" {
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns one entry or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT id, text, created_at, settings FROM history WHERE id = ?`), id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

// Remove deletes one entry; ErrNotFound when no row matched.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.d.rebind(`DELETE FROM history WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear deletes all entries.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(r scanner) (Item, error) {
	var (
		it   Item
		ns   int64
		blob []byte
	)
	if err := r.Scan(&it.ID, &it.Text, &ns, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Item{}, err
		}
		return Item{}, fmt.Errorf("scan history: %w", err)
	}
	it.Text = strings.TrimSpace(it.Text)
	it.CreatedAt = time.Unix(0, ns).UTC()
	var snap settings.Settings
	if err := json.Unmarshal(blob, &snap); err != nil {
		snap = settings.Defaults()
	}
	it.Settings = settings.Sanitize(snap)
	return it, nil
}
