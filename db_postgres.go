package main

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

type PostgresStore struct {
	db  *sql.DB
	dsn string
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresStore{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init() error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.Ping()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (p *PostgresStore) CreateUser(email, passwordHash string) (*User, error) {
	var u User
	err := p.db.QueryRow(
		`INSERT INTO users(email,password_hash,is_verified,last_password_reset,created_at,updated_at)
		 VALUES($1,$2,false,now(),now(),now())
		 RETURNING id,email,password_hash,is_verified,last_password_reset,created_at,updated_at`,
		email, passwordHash).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsVerified, &u.LastPasswordReset, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresStore) GetUserByEmail(email string) (*User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT id,email,password_hash,is_verified,verified_at,last_password_reset,created_at,updated_at FROM users WHERE email = $1`, email))
}

func (p *PostgresStore) GetUserByID(id int64) (*User, error) {
	return p.scanUser(p.db.QueryRow(
		`SELECT id,email,password_hash,is_verified,verified_at,last_password_reset,created_at,updated_at FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var verifiedAt sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsVerified, &verifiedAt, &u.LastPasswordReset, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		u.VerifiedAt = &t
	}
	return &u, nil
}

func (p *PostgresStore) UpdateUser(u *User) error {
	var verifiedAt sql.NullTime
	if u.VerifiedAt != nil {
		verifiedAt = sql.NullTime{Time: *u.VerifiedAt, Valid: true}
	}
	_, err := p.db.Exec(
		`UPDATE users SET password_hash = $1, is_verified = $2, verified_at = $3, last_password_reset = $4, updated_at = now() WHERE id = $5`,
		u.PasswordHash, u.IsVerified, verifiedAt, u.LastPasswordReset, u.ID)
	return err
}

func (p *PostgresStore) InsertEvent(e *Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(
		`INSERT INTO events(event_name,user_id,metadata,created_at) VALUES($1,$2,$3,now())`,
		e.Name, e.UserID, string(meta))
	return err
}

func (p *PostgresStore) close() error { return p.db.Close() }
func (p *PostgresStore) ping() bool   { return p.db.Ping() == nil }
