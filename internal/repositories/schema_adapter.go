package repositories

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const maxWriteAttempts = 4

const savepointName = "schema_write"

var undefinedColumnPattern = regexp.MustCompile(`column "?([A-Za-z0-9_]+)"? (?:of relation "[^"]+" )?does not exist`)

// ErrWriteAttemptsExhausted is returned when a write keeps failing on missing columns.
var ErrWriteAttemptsExhausted = errors.New("write failed after stripping unknown columns")

// SchemaAdapter discovers table columns at runtime and adapts reads and writes
// to whichever optional columns the connected database actually has.
type SchemaAdapter struct {
	db Querier

	mu      sync.RWMutex
	columns map[string]map[string]string // table -> lower(column) -> column
}

func NewSchemaAdapter(db Querier) *SchemaAdapter {
	return &SchemaAdapter{db: db, columns: make(map[string]map[string]string)}
}

// Columns returns the column set of table, introspecting it on first use.
// Failed or empty introspection is not cached and yields an error.
func (s *SchemaAdapter) Columns(ctx context.Context, table string) (map[string]string, error) {
	s.mu.RLock()
	cols, ok := s.columns[table]
	s.mu.RUnlock()
	if ok {
		return cols, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", table, err)
	}
	defer rows.Close()

	cols = make(map[string]string)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no columns visible for %s", table)
	}

	s.mu.Lock()
	s.columns[table] = cols
	s.mu.Unlock()
	return cols, nil
}

// Invalidate drops the cached column set of table.
func (s *SchemaAdapter) Invalidate(table string) {
	s.mu.Lock()
	delete(s.columns, table)
	s.mu.Unlock()
}

// HasColumn reports whether table has column. known is false when the
// column set could not be introspected.
func (s *SchemaAdapter) HasColumn(ctx context.Context, table, column string) (present, known bool) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return false, false
	}
	_, present = cols[strings.ToLower(column)]
	return present, true
}

// ResolveColumn returns the first candidate the table actually has, matching
// exactly first and then case-insensitively. Without introspection the first
// candidate is returned.
func (s *SchemaAdapter) ResolveColumn(ctx context.Context, table string, candidates ...string) string {
	if len(candidates) == 0 {
		return ""
	}
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return candidates[0]
	}
	for _, c := range candidates {
		if actual, ok := cols[strings.ToLower(c)]; ok && actual == c {
			return c
		}
	}
	for _, c := range candidates {
		if actual, ok := cols[strings.ToLower(c)]; ok {
			return actual
		}
	}
	return candidates[0]
}

// project drops payload keys the table is known not to have and renames the
// rest to the column's actual casing.
func (s *SchemaAdapter) project(ctx context.Context, table string, payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	cols, err := s.Columns(ctx, table)
	for k, v := range payload {
		if err != nil {
			out[k] = v
			continue
		}
		if actual, ok := cols[strings.ToLower(k)]; ok {
			out[actual] = v
		}
	}
	return out
}

// narrow handles an undefined-column failure: the cache is refreshed and
// unknown keys are dropped; the identifier in the error message is used only
// when fresh introspection does not explain the failure.
func (s *SchemaAdapter) narrow(ctx context.Context, table string, payload map[string]any, cause error) (map[string]any, bool) {
	s.Invalidate(table)
	narrowed := s.project(ctx, table, payload)
	if len(narrowed) < len(payload) {
		return narrowed, true
	}

	var pgErr *pgconn.PgError
	if errors.As(cause, &pgErr) {
		candidates := []string{pgErr.ColumnName}
		if m := undefinedColumnPattern.FindStringSubmatch(pgErr.Message); m != nil {
			candidates = append(candidates, m[1])
		}
		for _, name := range candidates {
			if _, ok := payload[name]; ok && name != "" {
				delete(narrowed, name)
				return narrowed, true
			}
		}
	}
	return payload, false
}

func sortedKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildInsert(table string, payload map[string]any, returning []string) (string, []any) {
	keys := sortedKeys(payload)
	cols := make([]string, len(keys))
	params := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = quote(k)
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = payload[k]
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(cols, ", "), strings.Join(params, ", "))
	if len(returning) > 0 {
		ret := make([]string, len(returning))
		for i, r := range returning {
			ret[i] = quote(r)
		}
		query += " RETURNING " + strings.Join(ret, ", ")
	}
	return query, args
}

func buildUpdate(table string, payload map[string]any, whereColumn string, whereValue any) (string, []any) {
	keys := sortedKeys(payload)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", quote(k), i+1)
		args = append(args, payload[k])
	}
	args = append(args, whereValue)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", quote(table), strings.Join(sets, ", "), quote(whereColumn), len(args))
	return query, args
}

// InsertWithFallback inserts payload into table inside tx. Each attempt runs
// under a savepoint so an undefined-column failure leaves tx usable; the
// offending keys are stripped and the insert retried, at most maxWriteAttempts
// times. Returned columns are scanned into dest.
func (s *SchemaAdapter) InsertWithFallback(ctx context.Context, tx pgx.Tx, table string, payload map[string]any, returning []string, dest ...any) error {
	current := s.project(ctx, table, payload)
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepointName); err != nil {
			return fmt.Errorf("failed to open savepoint: %w", err)
		}

		query, args := buildInsert(table, current, returning)
		var err error
		if len(returning) > 0 {
			err = tx.QueryRow(ctx, query, args...).Scan(dest...)
		} else {
			_, err = tx.Exec(ctx, query, args...)
		}
		if err == nil {
			if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepointName); err != nil {
				return fmt.Errorf("failed to release savepoint: %w", err)
			}
			return nil
		}

		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint: %w", rbErr)
		}
		if pgErrorCode(err) != pgUndefinedColumn {
			return err
		}
		lastErr = err

		narrowed, ok := s.narrow(ctx, table, current, err)
		if !ok {
			return err
		}
		log.Printf("WARN: [schema] insert into %s retried without %v", table, droppedKeys(current, narrowed))
		current = narrowed
	}
	return fmt.Errorf("%w: %s: %v", ErrWriteAttemptsExhausted, table, lastErr)
}

// UpdateWithFallback updates table rows matching whereColumn = whereValue.
// It runs outside a transaction; unknown columns are stripped the same way
// as InsertWithFallback. An empty projected payload is a no-op.
func (s *SchemaAdapter) UpdateWithFallback(ctx context.Context, q Querier, table string, payload map[string]any, whereColumn string, whereValue any) error {
	current := s.project(ctx, table, payload)
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if len(current) == 0 {
			return nil
		}
		query, args := buildUpdate(table, current, whereColumn, whereValue)
		_, err := q.Exec(ctx, query, args...)
		if err == nil {
			return nil
		}
		if pgErrorCode(err) != pgUndefinedColumn {
			return err
		}
		lastErr = err

		narrowed, ok := s.narrow(ctx, table, current, err)
		if !ok {
			return err
		}
		log.Printf("WARN: [schema] update of %s retried without %v", table, droppedKeys(current, narrowed))
		current = narrowed
	}
	return fmt.Errorf("%w: %s: %v", ErrWriteAttemptsExhausted, table, lastErr)
}

func droppedKeys(before, after map[string]any) []string {
	var dropped []string
	for _, k := range sortedKeys(before) {
		if _, ok := after[k]; !ok {
			dropped = append(dropped, k)
		}
	}
	return dropped
}
