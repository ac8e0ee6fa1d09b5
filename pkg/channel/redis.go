package channel

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack"

	"github.com/mahaj/channel-hub/pkg/model"
)

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

const channelSetKey = "channels"

func channelKey(name string) string {
	return "channel:" + name
}

func listenersKey(name string) string {
	return "channel:" + name + ":listeners"
}

// Redis stores channel records as msgpack values, with a set of all names for listing.
// Presence is a set of listener ids per channel.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func serialize(v interface{}) (string, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func deserialize(s string, dest interface{}) error {
	return msgpack.Unmarshal([]byte(s), dest)
}

func (r *Redis) Create(ctx context.Context, ch *model.Channel) error {
	value, err := serialize(ch)
	if err != nil {
		return errors.Wrap(err, "unable to encode channel")
	}
	ok, err := r.client.SetNX(ctx, channelKey(ch.Name), value, 0).Result()
	if err != nil {
		return errors.Wrap(err, "unable to create channel")
	}
	if !ok {
		return errors.Wrap(ErrExists, ch.Name)
	}
	if err := r.client.SAdd(ctx, channelSetKey, ch.Name).Err(); err != nil {
		return errors.Wrap(err, "unable to index channel")
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, name string) (*model.Channel, error) {
	value, err := r.client.Get(ctx, channelKey(name)).Result()
	if err == redis.Nil {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to get channel")
	}
	var ch model.Channel
	if err := deserialize(value, &ch); err != nil {
		return nil, errors.Wrap(err, "unable to decode channel")
	}
	return &ch, nil
}

func (r *Redis) List(ctx context.Context) ([]*model.Channel, error) {
	names, err := r.client.SMembers(ctx, channelSetKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list channels")
	}
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = channelKey(name)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "unable to load channels")
	}

	ret := make([]*model.Channel, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ch model.Channel
		if err := deserialize(s, &ch); err != nil {
			return nil, errors.Wrap(err, "unable to decode channel")
		}
		ret = append(ret, &ch)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})
	return ret, nil
}

func (r *Redis) Delete(ctx context.Context, name string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, channelKey(name))
		pipe.SRem(ctx, channelSetKey, name)
		pipe.Del(ctx, listenersKey(name))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "unable to delete channel")
	}
	if del.Val() == 0 {
		return errors.Wrap(ErrNotFound, name)
	}
	return nil
}

func (r *Redis) Join(ctx context.Context, channel, listener string) error {
	return errors.Wrap(r.client.SAdd(ctx, listenersKey(channel), listener).Err(), "unable to record listener")
}

func (r *Redis) Leave(ctx context.Context, channel, listener string) error {
	return errors.Wrap(r.client.SRem(ctx, listenersKey(channel), listener).Err(), "unable to remove listener")
}

func (r *Redis) Listeners(ctx context.Context, channel string) ([]string, error) {
	ret, err := r.client.SMembers(ctx, listenersKey(channel)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "unable to fetch listeners")
	}
	sort.Strings(ret)
	return ret, nil
}

func (r *Redis) Clear(ctx context.Context, channel string) error {
	return errors.Wrap(r.client.Del(ctx, listenersKey(channel)).Err(), "unable to clear listeners")
}
