// Package contentkey defines item identities, the time-bucket scopes built from them, and the
// per-channel assigner that hands identities out.
package contentkey

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidKey is returned when a key or scope path cannot be parsed.
var ErrInvalidKey = errors.New("invalid content key")

// Key identifies an item within a channel: a second-resolution UTC time plus a sequence that
// orders items accepted within the same second.
type Key struct {
	Time time.Time
	Seq  uint32
}

// NewKey truncates t to the second and converts it to UTC.
func NewKey(t time.Time, seq uint32) Key {
	return Key{Time: t.UTC().Truncate(time.Second), Seq: seq}
}

// IsZero reports whether k is the zero key, which sorts before every assigned key.
func (k Key) IsZero() bool {
	return k.Time.IsZero() && k.Seq == 0
}

// Compare returns -1, 0 or +1.
func (k Key) Compare(other Key) int {
	switch {
	case k.Time.Before(other.Time):
		return -1
	case k.Time.After(other.Time):
		return 1
	case k.Seq < other.Seq:
		return -1
	case k.Seq > other.Seq:
		return 1
	}
	return 0
}

func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

func (k Key) Equal(other Key) bool {
	return k.Compare(other) == 0
}

// Path renders the key as yyyy/MM/dd/HH/mm/ss/seq.
func (k Key) Path() string {
	return k.Time.Format("2006/01/02/15/04/05") + "/" + fmt.Sprintf("%06d", k.Seq)
}

func (k Key) String() string {
	return k.Path()
}

// ParseKey parses the output of Key.Path.
func ParseKey(path string) (Key, error) {
	scope, err := ParseScope(splitPath(path))
	if err != nil {
		return Key{}, err
	}
	if scope.Level() != LevelItem {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q is not an item path", path)
	}
	return scope.key, nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// parseSegments converts up to six numeric time segments into a UTC time, rejecting values that
// time.Date would silently normalize.
func parseSegments(segments []string) (time.Time, error) {
	values := [6]int{0, 1, 1, 0, 0, 0}
	for i, s := range segments {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			return time.Time{}, errors.Wrapf(ErrInvalidKey, "segment %q", s)
		}
		values[i] = v
	}
	t := time.Date(values[0], time.Month(values[1]), values[2], values[3], values[4], values[5], 0, time.UTC)
	if t.Year() != values[0] || int(t.Month()) != values[1] || t.Day() != values[2] ||
		t.Hour() != values[3] || t.Minute() != values[4] || t.Second() != values[5] {
		return time.Time{}, errors.Wrapf(ErrInvalidKey, "%s is not a valid time", strings.Join(segments, "/"))
	}
	return t, nil
}
