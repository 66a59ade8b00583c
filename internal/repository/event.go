package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tracklink/tracklink/internal/analytics"
	"github.com/tracklink/tracklink/internal/model"
)

// Common errors for event repository operations.
var (
	ErrEventNotFound = errors.New("event not found")
)

// EventRepository provides database access for landing events.
type EventRepository struct {
	repo *Repository
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(repo *Repository) *EventRepository {
	return &EventRepository{repo: repo}
}

// Insert persists one event with forward_status queued.
func (r *EventRepository) Insert(ctx context.Context, event *model.Event) error {
	attribution, err := json.Marshal(event.Attribution)
	if err != nil {
		return fmt.Errorf("marshal attribution: %w", err)
	}
	eventContext, err := json.Marshal(event.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	route, err := json.Marshal(event.Route)
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}
	identity, err := json.Marshal(event.Identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	query := `
		INSERT INTO landing_events (
			id, event_id, event_name, request_path, test_event_code, event_source_url,
			attribution, context, route, identity,
			user_agent, client_ip, fbp, fbc, forward_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.repo.pool.Exec(ctx, query,
		event.ID,
		event.EventID,
		string(event.Name),
		event.RequestPath,
		nullableString(event.TestEventCode),
		nullableString(event.EventSourceURL),
		attribution,
		eventContext,
		route,
		identity,
		nullableString(event.UserAgent),
		nullableString(event.ClientIP),
		nullableString(event.FBP),
		nullableString(event.FBC),
		string(model.ForwardQueued),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// UpdateForwardStatus records the terminal outcome of the forward attempt.
func (r *EventRepository) UpdateForwardStatus(ctx context.Context, id string, status model.ForwardStatus, forwardError string) error {
	query := `
		UPDATE landing_events
		SET forward_status = $2, forward_error = $3
		WHERE id = $1
	`

	tag, err := r.repo.pool.Exec(ctx, query, id, string(status), nullableString(forwardError))
	if err != nil {
		return fmt.Errorf("failed to update forward status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}

	return nil
}

// CountEvents counts events of one name inside the scope and window.
func (r *EventRepository) CountEvents(ctx context.Context, scope analytics.Scope, start, end time.Time, name model.EventName) (int64, error) {
	clause, arg := scopeCondition(scope, 4)
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM landing_events
		WHERE event_name = $1 AND created_at >= $2 AND created_at < $3 AND %s
	`, clause)

	var count int64
	if err := r.repo.pool.QueryRow(ctx, query, string(name), start, end, arg).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// FirstEventAt finds the earliest occurrence of an event name in scope.
func (r *EventRepository) FirstEventAt(ctx context.Context, scope analytics.Scope, name model.EventName) (time.Time, bool, error) {
	clause, arg := scopeCondition(scope, 2)
	query := fmt.Sprintf(`
		SELECT created_at
		FROM landing_events
		WHERE event_name = $1 AND %s
		ORDER BY created_at ASC
		LIMIT 1
	`, clause)

	var at time.Time
	err := r.repo.pool.QueryRow(ctx, query, string(name), arg).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to find first event: %w", err)
	}
	return at, true, nil
}

// ListEventsPage reads one page of events in scope and window, oldest first.
func (r *EventRepository) ListEventsPage(ctx context.Context, scope analytics.Scope, start, end time.Time, names []model.EventName, offset, limit int) ([]*model.Event, error) {
	clause, arg := scopeCondition(scope, 4)
	nameList := make([]string, len(names))
	for i, n := range names {
		nameList[i] = string(n)
	}

	query := fmt.Sprintf(`
		SELECT id, event_id, event_name, request_path, test_event_code, event_source_url,
		       attribution, context, route, identity,
		       user_agent, client_ip, fbp, fbc, forward_status, forward_error, created_at
		FROM landing_events
		WHERE event_name = ANY($1) AND created_at >= $2 AND created_at < $3 AND %s
		ORDER BY created_at ASC, id ASC
		OFFSET $5 LIMIT $6
	`, clause)

	rows, err := r.repo.pool.Query(ctx, query, nameList, start, end, arg, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	return events, nil
}

// GetEventByID retrieves one event, mainly for tests and debugging.
func (r *EventRepository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `
		SELECT id, event_id, event_name, request_path, test_event_code, event_source_url,
		       attribution, context, route, identity,
		       user_agent, client_ip, fbp, fbc, forward_status, forward_error, created_at
		FROM landing_events
		WHERE id = $1
	`

	event, err := scanEvent(r.repo.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// scopeCondition renders the scope as a SQL condition on the given
// positional argument.
func scopeCondition(scope analytics.Scope, position int) (string, string) {
	if scope.Mode == analytics.ModeSong {
		return fmt.Sprintf("request_path = $%d", position), scope.SongPath()
	}
	return fmt.Sprintf("request_path LIKE $%d", position), scope.ArtistPrefix() + "%"
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		event        model.Event
		name         string
		status       string
		testCode     *string
		sourceURL    *string
		userAgent    *string
		clientIP     *string
		fbp          *string
		fbc          *string
		forwardErr   *string
		attribution  []byte
		eventContext []byte
		route        []byte
		identity     []byte
	)

	err := row.Scan(
		&event.ID,
		&event.EventID,
		&name,
		&event.RequestPath,
		&testCode,
		&sourceURL,
		&attribution,
		&eventContext,
		&route,
		&identity,
		&userAgent,
		&clientIP,
		&fbp,
		&fbc,
		&status,
		&forwardErr,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Name = model.EventName(name)
	event.ForwardStatus = model.ForwardStatus(status)
	event.TestEventCode = derefString(testCode)
	event.EventSourceURL = derefString(sourceURL)
	event.UserAgent = derefString(userAgent)
	event.ClientIP = derefString(clientIP)
	event.FBP = derefString(fbp)
	event.FBC = derefString(fbc)
	event.ForwardError = derefString(forwardErr)

	if err := json.Unmarshal(attribution, &event.Attribution); err != nil {
		return nil, fmt.Errorf("unmarshal attribution: %w", err)
	}
	if err := json.Unmarshal(eventContext, &event.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	if err := json.Unmarshal(route, &event.Route); err != nil {
		return nil, fmt.Errorf("unmarshal route: %w", err)
	}
	if err := json.Unmarshal(identity, &event.Identity); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}

	return &event, nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
