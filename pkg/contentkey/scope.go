package contentkey

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Level is the granularity of a Scope.
type Level int

const (
	LevelChannel Level = iota
	LevelDay
	LevelHour
	LevelMinute
	LevelSecond
	LevelItem
)

var levelNames = map[Level]string{
	LevelChannel: "channel",
	LevelDay:     "day",
	LevelHour:    "hour",
	LevelMinute:  "minute",
	LevelSecond:  "second",
	LevelItem:    "item",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "level(" + strconv.Itoa(int(l)) + ")"
}

// segmentsPerLevel is the number of path segments that select each level.
var segmentsPerLevel = map[int]Level{
	0: LevelChannel,
	3: LevelDay,
	4: LevelHour,
	5: LevelMinute,
	6: LevelSecond,
	7: LevelItem,
}

// Scope selects a time bucket of a channel: the whole channel, a day, an hour, a minute, a
// second, or a single item. The zero value is the channel scope.
type Scope struct {
	level Level
	start time.Time
	key   Key
}

// ChannelScope matches every key.
func ChannelScope() Scope {
	return Scope{}
}

// ItemScope matches exactly k.
func ItemScope(k Key) Scope {
	return Scope{level: LevelItem, start: k.Time, key: k}
}

// ScopeOf returns the bucket at the given level that contains k.
func ScopeOf(level Level, k Key) Scope {
	t := k.Time.UTC()
	switch level {
	case LevelDay:
		return Scope{level: level, start: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
	case LevelHour:
		return Scope{level: level, start: t.Truncate(time.Hour)}
	case LevelMinute:
		return Scope{level: level, start: t.Truncate(time.Minute)}
	case LevelSecond:
		return Scope{level: level, start: t.Truncate(time.Second)}
	case LevelItem:
		return ItemScope(k)
	}
	return ChannelScope()
}

// ParseScope interprets time-bucket path segments following a channel name:
// none, yyyy/MM/dd, .../HH, .../mm, .../ss, or .../seq for a single item.
func ParseScope(segments []string) (Scope, error) {
	level, ok := segmentsPerLevel[len(segments)]
	if !ok {
		return Scope{}, errors.Wrapf(ErrInvalidKey, "unsupported scope %q", strings.Join(segments, "/"))
	}
	if level == LevelChannel {
		return ChannelScope(), nil
	}
	timeSegments := segments
	if level == LevelItem {
		timeSegments = segments[:6]
	}
	t, err := parseSegments(timeSegments)
	if err != nil {
		return Scope{}, err
	}
	if level == LevelItem {
		seq, err := strconv.ParseUint(segments[6], 10, 32)
		if err != nil {
			return Scope{}, errors.Wrapf(ErrInvalidKey, "sequence %q", segments[6])
		}
		return ItemScope(Key{Time: t, Seq: uint32(seq)}), nil
	}
	return Scope{level: level, start: t}, nil
}

func (s Scope) Level() Level {
	return s.level
}

// Key returns the item key of an item scope.
func (s Scope) Key() (Key, bool) {
	return s.key, s.level == LevelItem
}

// Bounds returns the half-open time range [from, to) covered by the scope. It reports false for
// the channel scope, which is unbounded.
func (s Scope) Bounds() (from, to time.Time, bounded bool) {
	switch s.level {
	case LevelDay:
		return s.start, s.start.AddDate(0, 0, 1), true
	case LevelHour:
		return s.start, s.start.Add(time.Hour), true
	case LevelMinute:
		return s.start, s.start.Add(time.Minute), true
	case LevelSecond, LevelItem:
		return s.start, s.start.Add(time.Second), true
	}
	return time.Time{}, time.Time{}, false
}

// Contains reports whether k falls inside the scope.
func (s Scope) Contains(k Key) bool {
	if s.level == LevelItem {
		return s.key.Equal(k)
	}
	from, to, bounded := s.Bounds()
	if !bounded {
		return true
	}
	return !k.Time.Before(from) && k.Time.Before(to)
}

// Path renders the scope's segments, or "" for the channel scope.
func (s Scope) Path() string {
	switch s.level {
	case LevelDay:
		return s.start.Format("2006/01/02")
	case LevelHour:
		return s.start.Format("2006/01/02/15")
	case LevelMinute:
		return s.start.Format("2006/01/02/15/04")
	case LevelSecond:
		return s.start.Format("2006/01/02/15/04/05")
	case LevelItem:
		return s.key.Path()
	}
	return ""
}

func (s Scope) String() string {
	if s.level == LevelChannel {
		return "channel"
	}
	return s.level.String() + ":" + s.Path()
}
