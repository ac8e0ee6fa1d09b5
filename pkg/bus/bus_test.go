package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

func TestLocalDeliversToAllHandlers(t *testing.T) {
	l := NewLocal()
	var mu sync.Mutex
	var got []string

	removeA := l.Handle(func(ctx context.Context, e Event) {
		mu.Lock()
		got = append(got, "a:"+e.Channel)
		mu.Unlock()
	})
	l.Handle(func(ctx context.Context, e Event) {
		mu.Lock()
		got = append(got, "b:"+e.Channel)
		mu.Unlock()
	})

	require.NoError(t, l.Publish(context.Background(), NewChannelDeleted("x")))
	assert.ElementsMatch(t, []string{"a:x", "b:x"}, got)

	removeA()
	got = nil
	require.NoError(t, l.Publish(context.Background(), NewChannelDeleted("y")))
	assert.Equal(t, []string{"b:y"}, got)
}

func TestLocalSubscribeStopsWithContext(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- l.Subscribe(ctx, func(ctx context.Context, e Event) {
			received <- e
		})
	}()

	require.Eventually(t, func() bool {
		_ = l.Publish(context.Background(), NewWebhookChanged("hook"))
		select {
		case e := <-received:
			return e.Webhook == "hook"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestEventCodec(t *testing.T) {
	k := contentkey.NewKey(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), 3)
	e := NewItemAppended("news", k, "http://hub/channel/news/"+k.Path())

	msg, err := encodeEvent(e)
	require.NoError(t, err)
	assert.Equal(t, "news", string(msg.Key))

	decoded, err := decodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, ItemAppended, decoded.Type)
	assert.Equal(t, e.URI, decoded.URI)

	got, err := decoded.ItemKey()
	require.NoError(t, err)
	assert.True(t, got.Equal(k))

	_, err = NewWebhookChanged("hook").ItemKey()
	assert.Error(t, err)

	_, err = decodeEvent(kafka.Message{Value: []byte(`{"channel":"x"}`)})
	assert.Error(t, err)
	_, err = decodeEvent(kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
}

func TestKafkaWriterFlushesPromptly(t *testing.T) {
	k := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "events"}, logrus.New())
	defer k.Close()
	assert.Equal(t, DefaultBatchTimeout, k.writer.BatchTimeout)

	k = NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "events", BatchTimeout: 20 * time.Millisecond}, logrus.New())
	defer k.Close()
	assert.Equal(t, 20*time.Millisecond, k.writer.BatchTimeout)
}
