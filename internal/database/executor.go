package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Query decodes the rows of the first result set into T. A response with no
// result sets yields nil, nil.
//
//	rows, err := Query[messageRow](ctx, db,
//		"SELECT * FROM message WHERE chat_id = $chat ORDER BY time_stamp DESC",
//		map[string]any{"chat": chatID})
func Query[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	sets, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, fmt.Errorf("surreal query: %w", err)
	}
	if sets == nil || len(*sets) == 0 {
		return nil, nil
	}
	return (*sets)[0].Result, nil
}

// QueryOne returns the first row of query, or nil, nil when there is none.
//
//	chat, err := QueryOne[chatRow](ctx, db,
//		"SELECT * FROM type::thing($tb, $id)",
//		map[string]any{"tb": "chat", "id": chatID})
func QueryOne[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) (*T, error) {
	rows, err := Query[T](ctx, db, limitOne(query), params)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// Execute runs statements for their side effects only.
//
//	err := Execute(ctx, db,
//		"UPDATE type::thing($tb, $id) SET participants -= $user",
//		map[string]any{"tb": "chat", "id": chatID, "user": userID})
func Execute(ctx context.Context, db *surrealdb.DB, query string, params map[string]any) error {
	if _, err := surrealdb.Query[any](ctx, db, query, params); err != nil {
		return fmt.Errorf("surreal exec: %w", err)
	}
	return nil
}

// limitOne caps a SELECT at one row. Writes are returned unchanged since
// SurrealQL rejects LIMIT on them.
func limitOne(query string) string {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(trimmed), "SELECT") || hasLimitClause(trimmed) {
		return query
	}
	return trimmed + " LIMIT 1"
}

func hasLimitClause(query string) bool {
	for _, field := range strings.Fields(strings.ToUpper(query)) {
		if field == "LIMIT" {
			return true
		}
	}
	return false
}
