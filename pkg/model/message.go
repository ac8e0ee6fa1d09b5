package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

// Item is a single stored payload. Items are immutable once accepted.
type Item struct {
	Channel     string         `json:"channel"`
	Key         contentkey.Key `json:"-"`
	Content     []byte         `json:"-"`
	ContentType string         `json:"content_type"`
	Created     time.Time      `json:"created"`
}

// Channel is a named, append-only stream of items.
type Channel struct {
	Name        string    `json:"name" msgpack:"name"`
	Description string    `json:"description,omitempty" msgpack:"description"`
	Created     time.Time `json:"created" msgpack:"created"`
}

var channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,48}$`)

// ValidChannelName reports whether name can be used as a channel name.
func ValidChannelName(name string) bool {
	return channelNamePattern.MatchString(name)
}

// ChannelURI returns the canonical URI of a channel.
func ChannelURI(baseURL, channel string) string {
	return strings.TrimRight(baseURL, "/") + "/channel/" + channel
}

// ItemURI returns the canonical URI of an item, which is also its retrieval path.
func ItemURI(baseURL, channel string, k contentkey.Key) string {
	return ChannelURI(baseURL, channel) + "/" + k.Path()
}

// ParseItemURI extracts the channel and key from a canonical item URI produced by ItemURI.
func ParseItemURI(uri string) (string, contentkey.Key, bool) {
	i := strings.Index(uri, "/channel/")
	if i < 0 {
		return "", contentkey.Key{}, false
	}
	rest := uri[i+len("/channel/"):]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "", contentkey.Key{}, false
	}
	k, err := contentkey.ParseKey(rest[slash+1:])
	if err != nil {
		return "", contentkey.Key{}, false
	}
	return rest[:slash], k, true
}
