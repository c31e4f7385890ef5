package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
)

// querier is satisfied by both *sql.DB and *ImmediateTx, letting every
// store method run either standalone or inside a pinned push transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// epochMS converts a Go time to UTC millisecond-epoch, the wire and storage
// representation spec.md mandates for all timestamps.
func epochMS(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func epochMSPtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: epochMS(*t), Valid: true}
}

func fromEpochMS(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromEpochMSNull(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := fromEpochMS(ns.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: marshal json: %w", err)
	}
	return string(data), nil
}

func unmarshalMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var s []string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil
	}
	return s
}

func marshalClock(c clock.Clock) (string, error) {
	if c == nil {
		return "{}", nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("store: marshal vector clock: %w", err)
	}
	return string(data), nil
}

func unmarshalClock(raw string) clock.Clock {
	if raw == "" {
		return clock.New()
	}
	var c clock.Clock
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return clock.New()
	}
	return c
}
