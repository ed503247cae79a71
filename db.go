package main

import (
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Store is the credential store contract. Lookups return (nil, nil) when
// no row matches. Every mutation is durable before the call returns.
type Store interface {
	Init() error
	// User operations
	CreateUser(email, passwordHash string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByID(id int64) (*User, error)
	UpdateUser(u *User) error
	// Audit operations
	InsertEvent(e *Event) error
}

// Memory store
type MemStore struct {
	mu     sync.Mutex
	users  map[string]*User
	events []*Event
	seq    int64
}

func NewMemStore() *MemStore {
	return &MemStore{users: map[string]*User{}, seq: 1}
}

func (m *MemStore) Init() error { return nil }

func (m *MemStore) CreateUser(email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, ErrDuplicateEmail
	}
	now := time.Now().UTC()
	u := &User{
		ID:                m.seq,
		Email:             email,
		PasswordHash:      passwordHash,
		LastPasswordReset: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.seq++
	m.users[email] = u
	cp := *u
	return &cp, nil
}

func (m *MemStore) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemStore) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) UpdateUser(u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, existing := range m.users {
		if existing.ID == u.ID {
			cp := *u
			cp.UpdatedAt = time.Now().UTC()
			m.users[email] = &cp
			return nil
		}
	}
	return ErrUserNotFound
}

func (m *MemStore) InsertEvent(e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	cp.ID = int64(len(m.events) + 1)
	cp.CreatedAt = time.Now().UTC()
	m.events = append(m.events, &cp)
	return nil
}

// Events returns a snapshot of recorded events, for tests.
func (m *MemStore) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// SQLite store
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			is_verified INTEGER NOT NULL DEFAULT 0,
			verified_at TEXT,
			last_password_reset TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_name TEXT NOT NULL,
			user_id INTEGER,
			metadata TEXT,
			created_at TEXT NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

const sqliteTimeLayout = time.RFC3339Nano

func (s *SQLiteStore) CreateUser(email, passwordHash string) (*User, error) {
	now := time.Now().UTC()
	ts := now.Format(sqliteTimeLayout)
	res, err := s.db.Exec(
		`INSERT INTO users(email,password_hash,is_verified,last_password_reset,created_at,updated_at) VALUES(?,?,0,?,?,?)`,
		email, passwordHash, ts, ts, ts)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Email: email, PasswordHash: passwordHash, LastPasswordReset: now, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id,email,password_hash,is_verified,verified_at,last_password_reset,created_at,updated_at FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id,email,password_hash,is_verified,verified_at,last_password_reset,created_at,updated_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var verified int
	var verifiedAt sql.NullString
	var lastReset, created, updated string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &verified, &verifiedAt, &lastReset, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.IsVerified = verified != 0
	var err error
	if u.LastPasswordReset, err = time.Parse(sqliteTimeLayout, lastReset); err != nil {
		return nil, err
	}
	if u.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t, err := time.Parse(sqliteTimeLayout, verifiedAt.String)
		if err != nil {
			return nil, err
		}
		u.VerifiedAt = &t
	}
	return &u, nil
}

func (s *SQLiteStore) UpdateUser(u *User) error {
	verified := 0
	if u.IsVerified {
		verified = 1
	}
	var verifiedAt interface{}
	if u.VerifiedAt != nil {
		verifiedAt = u.VerifiedAt.UTC().Format(sqliteTimeLayout)
	}
	_, err := s.db.Exec(
		`UPDATE users SET password_hash = ?, is_verified = ?, verified_at = ?, last_password_reset = ?, updated_at = ? WHERE id = ?`,
		u.PasswordHash, verified, verifiedAt,
		u.LastPasswordReset.UTC().Format(sqliteTimeLayout),
		time.Now().UTC().Format(sqliteTimeLayout), u.ID)
	return err
}

func (s *SQLiteStore) InsertEvent(e *Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO events(event_name,user_id,metadata,created_at) VALUES(?,?,?,?)`,
		e.Name, e.UserID, string(meta), time.Now().UTC().Format(sqliteTimeLayout))
	return err
}

// lifecycle helpers
func (m *MemStore) close() error { return nil }
func (m *MemStore) ping() bool   { return true }

func (s *SQLiteStore) close() error { return s.db.Close() }
func (s *SQLiteStore) ping() bool   { return s.db.Ping() == nil }
