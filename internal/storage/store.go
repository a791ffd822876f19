package storage

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
	"roomchat/internal/storage/zapadapter"
	"time"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotExist = errors.New("user does not exist")
)

// eventChannel is the NOTIFY channel carrying message log change events
const eventChannel = "room_events"

const schema = `
create table if not exists users (
    id            bigserial primary key,
    username      text not null unique,
    password_hash text not null,
    created_at    timestamptz not null
);

create table if not exists messages (
    id         bigserial primary key,
    username   text not null,
    body       text not null,
    created_at timestamptz not null default now()
);

create index if not exists idx_messages_created_at on messages (created_at);`

// notifyPayload is the JSON document published on eventChannel inside the
// same transaction as the write it describes. It carries the message id
// rather than the message itself: NOTIFY payloads are capped at 8000 bytes
// while message bodies have no length limit, so listeners fetch the row.
type notifyPayload struct {
	Op string `json:"op"`
	ID int64  `json:"id,omitempty"`
}

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// CreateUser creates user record with pre-hashed password and returns its id.
// Plaintext passwords never reach this layer.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	s.logger.Debugf("Creating user (%s)", username)

	var id int64
	sql := "insert into users (username, password_hash, created_at) values ($1, $2, $3) returning id"
	err := s.db.QueryRow(ctx, sql, username, passwordHash, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return 0, ErrUserExists
			}
		}
		return 0, err
	}

	s.logger.Debugf("Created user (%s) with id %d", username, id)

	return id, nil
}

// UserByUsername returns user record by exact username match
func (s *Store) UserByUsername(ctx context.Context, username string) (User, error) {
	s.logger.Debugf("Retrieving user (%s)", username)

	var u User
	sql := "select id, username, password_hash, created_at from users where username = $1"
	err := s.db.QueryRow(ctx, sql, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}

	return u, nil
}

// CreateMessage appends message to the log and returns it with server-assigned
// id and created_at. An "append" event is published in the same transaction,
// so listeners observe events in commit order.
func (s *Store) CreateMessage(ctx context.Context, username, body string) (Message, error) {
	s.logger.Debugf("Creating message from user (%s)", username)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions or any source comment on Rollback
	defer tx.Rollback(context.Background())

	m := Message{Username: username, Body: body}
	sql := "insert into messages (username, body) values ($1, $2) returning id, created_at"
	err = tx.QueryRow(ctx, sql, username, body).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	if err = notify(ctx, tx, notifyPayload{Op: "append", ID: m.ID}); err != nil {
		return Message{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	s.logger.Debugf("Created message with id %d", m.ID)

	return m, nil
}

// messageByID loads a single message. The second return value is false when
// the row no longer exists, which happens when a clear lands between an
// append event and its delivery.
func (s *Store) messageByID(ctx context.Context, id int64) (Message, bool, error) {
	var m Message
	sql := "select id, username, body, created_at from messages where id = $1"
	err := s.db.QueryRow(ctx, sql, id).Scan(&m.ID, &m.Username, &m.Body, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}

	return m, true, nil
}

// Messages returns the full message log sorted by creation order
// (from earliest to latest)
func (s *Store) Messages(ctx context.Context) ([]Message, error) {
	s.logger.Debug("Retrieving messages")

	sql := `select id, username, body, created_at
			  from messages
			 order by id asc`

	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		err = rows.Scan(&m.ID, &m.Username, &m.Body, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

// ClearMessages deletes every message in a single transaction together with
// a "clear" event, so no reader observes a partial clear
func (s *Store) ClearMessages(ctx context.Context) error {
	s.logger.Debug("Clearing message log")

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	if _, err = tx.Exec(ctx, "delete from messages"); err != nil {
		return err
	}

	if err = notify(ctx, tx, notifyPayload{Op: "clear"}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close closes underlying pgxpool.Pool
func (s *Store) Close() {
	s.db.Close()
}

func notify(ctx context.Context, tx pgx.Tx, p notifyPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, "select pg_notify($1, $2)", eventChannel, string(payload))
	return err
}
