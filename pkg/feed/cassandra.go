package feed

import (
	"context"
	"iter"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/db"
	"github.com/mahaj/channel-hub/pkg/model"
)

const defaultPageSize = 500

// Cassandra is a Feed backed by the items table created by db.EnsureSchema.
type Cassandra struct {
	session  *db.Session
	pageSize int
}

func NewCassandra(session *db.Session) *Cassandra {
	return &Cassandra{
		session:  session,
		pageSize: defaultPageSize,
	}
}

func (c *Cassandra) Append(ctx context.Context, item *model.Item) error {
	query := `INSERT INTO items (channel, ts, seq, content, content_type, created) VALUES (?, ?, ?, ?, ?, ?) IF NOT EXISTS`
	applied, err := c.session.Query(query,
		item.Channel, item.Key.Time, int64(item.Key.Seq), item.Content, item.ContentType, item.Created,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return unavailable(err, "append")
	}
	if !applied {
		return errors.Wrapf(ErrConflict, "%s/%s", item.Channel, item.Key)
	}
	return nil
}

func (c *Cassandra) Get(ctx context.Context, channel string, key contentkey.Key) (*model.Item, error) {
	item := &model.Item{
		Channel: channel,
		Key:     key,
	}
	err := c.session.Query(`SELECT content, content_type, created FROM items WHERE channel = ? AND ts = ? AND seq = ?`,
		channel, key.Time, int64(key.Seq),
	).WithContext(ctx).Scan(&item.Content, &item.ContentType, &item.Created)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", channel, key)
	} else if err != nil {
		return nil, unavailable(err, "get")
	}
	item.Created = item.Created.UTC()
	return item, nil
}

func (c *Cassandra) rangeQuery(ctx context.Context, channel string, scope contentkey.Scope) *gocql.Query {
	if k, ok := scope.Key(); ok {
		return c.session.Query(`SELECT ts, seq FROM items WHERE channel = ? AND ts = ? AND seq = ?`,
			channel, k.Time, int64(k.Seq)).WithContext(ctx)
	}
	if from, to, bounded := scope.Bounds(); bounded {
		return c.session.Query(`SELECT ts, seq FROM items WHERE channel = ? AND ts >= ? AND ts < ?`,
			channel, from, to).WithContext(ctx)
	}
	return c.session.Query(`SELECT ts, seq FROM items WHERE channel = ?`, channel).WithContext(ctx)
}

func (c *Cassandra) Range(ctx context.Context, channel string, scope contentkey.Scope) iter.Seq2[contentkey.Key, error] {
	return func(yield func(contentkey.Key, error) bool) {
		it := c.rangeQuery(ctx, channel, scope).PageSize(c.pageSize).Iter()

		var ts time.Time
		var seq int64
		for it.Scan(&ts, &seq) {
			if !yield(contentkey.NewKey(ts, uint32(seq)), nil) {
				_ = it.Close()
				return
			}
		}
		if err := it.Close(); err != nil {
			yield(contentkey.Key{}, unavailable(err, "range"))
		}
	}
}

func (c *Cassandra) TailSince(ctx context.Context, channel string, after contentkey.Key, limit int) ([]contentkey.Key, error) {
	var q *gocql.Query
	if after.IsZero() {
		q = c.session.Query(`SELECT ts, seq FROM items WHERE channel = ?`, channel)
	} else {
		q = c.session.Query(`SELECT ts, seq FROM items WHERE channel = ? AND (ts, seq) > (?, ?)`,
			channel, after.Time, int64(after.Seq))
	}
	pageSize := c.pageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}
	it := q.WithContext(ctx).PageSize(pageSize).Iter()

	var keys []contentkey.Key
	var ts time.Time
	var seq int64
	for it.Scan(&ts, &seq) {
		keys = append(keys, contentkey.NewKey(ts, uint32(seq)))
		if limit > 0 && len(keys) == limit {
			break
		}
	}
	if err := it.Close(); err != nil {
		return nil, unavailable(err, "tail")
	}
	return keys, nil
}

func (c *Cassandra) Latest(ctx context.Context, channel string) (contentkey.Key, bool, error) {
	var ts time.Time
	var seq int64
	err := c.session.Query(`SELECT ts, seq FROM items WHERE channel = ? ORDER BY ts DESC, seq DESC LIMIT 1`, channel).
		WithContext(ctx).Scan(&ts, &seq)
	if errors.Is(err, gocql.ErrNotFound) {
		return contentkey.Key{}, false, nil
	} else if err != nil {
		return contentkey.Key{}, false, unavailable(err, "latest")
	}
	return contentkey.NewKey(ts, uint32(seq)), true, nil
}

func (c *Cassandra) DeleteChannel(ctx context.Context, channel string) error {
	if err := c.session.Query(`DELETE FROM items WHERE channel = ?`, channel).WithContext(ctx).Exec(); err != nil {
		return unavailable(err, "delete channel")
	}
	return nil
}
