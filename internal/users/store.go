package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-sheets/internal/db"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrExists         = errors.New("username taken")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrInvalid        = errors.New("invalid user")
)

type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	Created  time.Time `json:"created"`
}

// Store keeps accounts in the users table. Passwords are stored as bcrypt hashes.
type Store struct {
	db    *sql.DB
	cost  int
	now   func() time.Time
	newID func() string
}

type Option func(*Store)

// WithCost overrides the bcrypt cost (tests use bcrypt.MinCost).
func WithCost(c int) Option { return func(s *Store) { s.cost = c } }

func NewStore(h *sql.DB, opts ...Option) *Store {
	s := &Store{db: h, cost: 12, now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validRole(r string) bool { return r == RoleUser || r == RoleAdmin }

func (s *Store) Create(ctx context.Context, username, password, role string) (User, error) {
	username = strings.TrimSpace(username)
	if role == "" {
		role = RoleUser
	}
	switch {
	case username == "":
		return User{}, fmt.Errorf("%w: username required", ErrInvalid)
	case password == "":
		return User{}, fmt.Errorf("%w: password required", ErrInvalid)
	case !validRole(role):
		return User{}, fmt.Errorf("%w: role %q", ErrInvalid, role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, err
	}
	u := User{ID: s.newID(), Username: username, Role: role, Created: s.now().UTC().Truncate(time.Millisecond)}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Username, string(hash), u.Role, u.Created.UnixMilli())
	if db.IsUniqueViolation(err) {
		return User{}, ErrExists
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *Store) scan(row *sql.Row) (User, string, error) {
	var (
		u       User
		hash    string
		created int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Role, &hash, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, "", ErrNotFound
		}
		return User{}, "", err
	}
	u.Created = time.UnixMilli(created).UTC()
	return u, hash, nil
}

func (s *Store) Get(ctx context.Context, id string) (User, error) {
	u, _, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash, created_at FROM users WHERE id=$1`, id))
	return u, err
}

func (s *Store) ByUsername(ctx context.Context, username string) (User, error) {
	u, _, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash, created_at FROM users WHERE username=$1`, username))
	return u, err
}

// Authenticate returns ErrBadCredentials for both unknown users and wrong passwords.
func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, hash, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash, created_at FROM users WHERE username=$1`, username))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

func (s *Store) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password required", ErrInvalid)
	}
	_, hash, err := s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash, created_at FROM users WHERE id=$1`, id))
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPassword)) != nil {
		return ErrBadCredentials
	}
	nh, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(nh), id)
	return err
}

// List returns users ordered by username, optionally filtered by role.
func (s *Store) List(ctx context.Context, role string) ([]User, error) {
	q := `SELECT id, username, role, created_at FROM users`
	var args []any
	if role != "" {
		q += ` WHERE role=$1`
		args = append(args, role)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY username`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var (
			u       User
			created int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &created); err != nil {
			return nil, err
		}
		u.Created = time.UnixMilli(created).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}
