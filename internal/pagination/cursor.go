package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor is the keyset position of the last row of a page. Listings order by
// (timestamp DESC, id DESC) and resume strictly below the cursor.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor returns an opaque, URL-safe token for the given position.
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := timestamp.UTC().Format(time.RFC3339Nano) + "|" + lastID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token means
// the first page and yields a nil cursor.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	ts, id, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}

// ClampLimit maps out-of-range page sizes to DefaultLimit.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}

// Trim cuts a result fetched with limit+1 rows down to limit and builds the
// cursor for the next page when the extra row was present.
func Trim[T any](rows []T, limit int, position func(T) (string, time.Time)) PageResult[T] {
	if len(rows) <= limit {
		return PageResult[T]{Items: rows}
	}
	rows = rows[:limit]
	id, ts := position(rows[len(rows)-1])
	return PageResult[T]{Items: rows, Cursor: EncodeCursor(id, ts), HasMore: true}
}
