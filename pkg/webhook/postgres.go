package webhook

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

type PostgresConfig struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	Username string `yaml:"username" env:"POSTGRES_USER" env-default:"hub"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Database string `yaml:"database" env:"POSTGRES_DB" env-default:"hub"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

const createWebhooksTable = `
CREATE TABLE IF NOT EXISTS webhooks (
	name         text PRIMARY KEY,
	channel      text NOT NULL,
	callback_url text NOT NULL,
	paused       boolean NOT NULL DEFAULT false,
	secret       text NOT NULL DEFAULT '',
	cursor_ts    timestamptz,
	cursor_seq   bigint,
	created_at   timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS webhooks_channel_idx ON webhooks (channel);`

var webhookColumns = []string{
	"name", "channel", "callback_url", "paused", "secret", "cursor_ts", "cursor_seq", "created_at",
}

type webhookRow struct {
	Name        string        `db:"name"`
	Channel     string        `db:"channel"`
	CallbackURL string        `db:"callback_url"`
	Paused      bool          `db:"paused"`
	Secret      string        `db:"secret"`
	CursorTS    sql.NullTime  `db:"cursor_ts"`
	CursorSeq   sql.NullInt64 `db:"cursor_seq"`
	CreatedAt   time.Time     `db:"created_at"`
}

func (r *webhookRow) webhook() *Webhook {
	wh := &Webhook{
		Name:        r.Name,
		Channel:     r.Channel,
		CallbackURL: r.CallbackURL,
		Paused:      r.Paused,
		Secret:      r.Secret,
		Created:     r.CreatedAt.UTC(),
	}
	if r.CursorTS.Valid {
		wh.Cursor = contentkey.NewKey(r.CursorTS.Time, uint32(r.CursorSeq.Int64))
	}
	return wh
}

func cursorValues(k contentkey.Key) (interface{}, interface{}) {
	if k.IsZero() {
		return nil, nil
	}
	return k.Time, int64(k.Seq)
}

// Postgres is a Store backed by a PostgreSQL table.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to postgres")
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection pool.
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createWebhooksTable); err != nil {
		return errors.Wrap(err, "unable to create webhooks table")
	}
	return nil
}

func (p *Postgres) DropSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DROP TABLE IF EXISTS webhooks`); err != nil {
		return errors.Wrap(err, "unable to drop webhooks table")
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Create(ctx context.Context, wh *Webhook) error {
	ts, seq := cursorValues(wh.Cursor)
	created := wh.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	query, args, err := sq.Insert("webhooks").
		Columns(webhookColumns...).
		Values(wh.Name, wh.Channel, wh.CallbackURL, wh.Paused, wh.Secret, ts, seq, created).
		Suffix("ON CONFLICT (name) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build sql query")
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to insert webhook")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(ErrExists, wh.Name)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, name string, update Update) (*Webhook, error) {
	builder := sq.Update("webhooks").
		Where(sq.Eq{"name": name}).
		Suffix("RETURNING " + strings.Join(webhookColumns, ", ")).
		PlaceholderFormat(sq.Dollar)
	changed := false
	if update.CallbackURL != nil {
		builder = builder.Set("callback_url", *update.CallbackURL)
		changed = true
	}
	if update.Paused != nil {
		builder = builder.Set("paused", *update.Paused)
		changed = true
	}
	if update.Secret != nil {
		builder = builder.Set("secret", *update.Secret)
		changed = true
	}
	if !changed {
		return p.Get(ctx, name)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build sql query")
	}

	var row webhookRow
	if err := p.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, name)
		}
		return nil, errors.Wrap(err, "failed to update webhook")
	}
	return row.webhook(), nil
}

func (p *Postgres) Delete(ctx context.Context, name string) error {
	query, args, err := sq.Delete("webhooks").
		Where(sq.Eq{"name": name}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build sql query")
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to delete webhook")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(ErrNotFound, name)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, name string) (*Webhook, error) {
	query, args, err := sq.Select(webhookColumns...).
		From("webhooks").
		Where(sq.Eq{"name": name}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build sql query")
	}

	var row webhookRow
	if err := p.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, name)
		}
		return nil, errors.Wrap(err, "failed to get webhook")
	}
	return row.webhook(), nil
}

func (p *Postgres) List(ctx context.Context, channel string) ([]*Webhook, error) {
	builder := sq.Select(webhookColumns...).
		From("webhooks").
		OrderBy("name").
		PlaceholderFormat(sq.Dollar)
	if channel != "" {
		builder = builder.Where(sq.Eq{"channel": channel})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build sql query")
	}

	var rows []webhookRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list webhooks")
	}
	ret := make([]*Webhook, 0, len(rows))
	for i := range rows {
		ret = append(ret, rows[i].webhook())
	}
	return ret, nil
}

func (p *Postgres) AdvanceCursor(ctx context.Context, name string, to contentkey.Key) (bool, error) {
	query, args, err := sq.Update("webhooks").
		Set("cursor_ts", to.Time).
		Set("cursor_seq", int64(to.Seq)).
		Where(sq.Eq{"name": name}).
		Where(sq.Or{
			sq.Eq{"cursor_ts": nil},
			sq.Expr("(cursor_ts, cursor_seq) < (?, ?)", to.Time, int64(to.Seq)),
		}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "failed to build sql query")
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, "failed to advance cursor")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to advance cursor")
	}
	if n > 0 {
		return true, nil
	}
	if _, err := p.Get(ctx, name); err != nil {
		return false, err
	}
	return false, nil
}
