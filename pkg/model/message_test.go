package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

func TestItemURI(t *testing.T) {
	k := contentkey.NewKey(time.Date(2026, 10, 19, 14, 5, 9, 0, time.UTC), 1)
	uri := ItemURI("http://hub:8080/", "flights", k)
	assert.Equal(t, "http://hub:8080/channel/flights/2026/10/19/14/05/09/000001", uri)

	channel, parsed, ok := ParseItemURI(uri)
	assert.True(t, ok)
	assert.Equal(t, "flights", channel)
	assert.True(t, parsed.Equal(k))

	_, _, ok = ParseItemURI("http://hub:8080/channel/flights")
	assert.False(t, ok)
}

func TestValidChannelName(t *testing.T) {
	assert.True(t, ValidChannelName("flight_status_2"))
	assert.False(t, ValidChannelName(""))
	assert.False(t, ValidChannelName("has space"))
	assert.False(t, ValidChannelName("a/b"))
}
