package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

const providerColumns = "id, name, kind, display_name, base_url, organization, enc_api_key, enc_headers_json, active, healthy, last_health_check, created_at"

func (s *Store) UpsertProvider(ctx context.Context, p Provider) (int64, error) {
	q := s.sql.Insert("providers").
		Columns("name", "kind", "display_name", "base_url", "organization", "enc_api_key", "enc_headers_json", "active", "healthy").
		Values(p.Name, p.Kind, p.DisplayName, p.BaseURL, p.Organization, p.EncAPIKey, p.EncHeadersJSON, p.Active, p.Healthy).
		Suffix("ON CONFLICT(name) DO UPDATE SET kind=excluded.kind, display_name=excluded.display_name, base_url=excluded.base_url, organization=excluded.organization, enc_api_key=excluded.enc_api_key, enc_headers_json=excluded.enc_headers_json, active=excluded.active")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build provider upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return 0, fmt.Errorf("upsert provider: %w", err)
	}

	idQ := s.sql.Select("id").From("providers").Where(sq.Eq{"name": p.Name})
	sqlStr, args, err = idQ.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build provider id query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("get provider id: %w", err)
	}
	return id, nil
}

func (s *Store) GetProviderByID(ctx context.Context, id int64) (Provider, error) {
	q := s.sql.Select(providerColumns).From("providers").Where(sq.Eq{"id": id})
	return s.scanProviderRow(ctx, q)
}

func (s *Store) GetProviderByName(ctx context.Context, name string) (Provider, error) {
	q := s.sql.Select(providerColumns).From("providers").Where(sq.Eq{"name": name})
	return s.scanProviderRow(ctx, q)
}

func (s *Store) scanProviderRow(ctx context.Context, q sq.SelectBuilder) (Provider, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Provider{}, fmt.Errorf("build provider query: %w", err)
	}

	var p Provider
	var encAPIKey, encHeaders sql.NullString
	var lastCheck sql.NullTime
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&p.ID,
		&p.Name,
		&p.Kind,
		&p.DisplayName,
		&p.BaseURL,
		&p.Organization,
		&encAPIKey,
		&encHeaders,
		&p.Active,
		&p.Healthy,
		&lastCheck,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Provider{}, ErrNotFound
		}
		return Provider{}, fmt.Errorf("get provider: %w", err)
	}
	if encAPIKey.Valid {
		p.EncAPIKey = &encAPIKey.String
	}
	if encHeaders.Valid {
		p.EncHeadersJSON = &encHeaders.String
	}
	if lastCheck.Valid {
		t := lastCheck.Time
		p.LastHealthCheck = &t
	}
	return p, nil
}

// ListActiveProviders returns providers eligible for selection: both the
// active and healthy flags must be set.
func (s *Store) ListActiveProviders(ctx context.Context) ([]Provider, error) {
	q := s.sql.Select(providerColumns).
		From("providers").
		Where(sq.Eq{"active": true, "healthy": true}).
		OrderBy("created_at ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list providers query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	out := make([]Provider, 0)
	for rows.Next() {
		var p Provider
		var encAPIKey, encHeaders sql.NullString
		var lastCheck sql.NullTime
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Kind,
			&p.DisplayName,
			&p.BaseURL,
			&p.Organization,
			&encAPIKey,
			&encHeaders,
			&p.Active,
			&p.Healthy,
			&lastCheck,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan provider row: %w", err)
		}
		if encAPIKey.Valid {
			p.EncAPIKey = &encAPIKey.String
		}
		if encHeaders.Valid {
			p.EncHeadersJSON = &encHeaders.String
		}
		if lastCheck.Valid {
			t := lastCheck.Time
			p.LastHealthCheck = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider rows: %w", err)
	}
	return out, nil
}

func (s *Store) SetProviderHealth(ctx context.Context, id int64, healthy bool, at time.Time) error {
	q := s.sql.Update("providers").
		Set("healthy", healthy).
		Set("last_health_check", at.UTC()).
		Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build provider health query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set provider health: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpsertChatbotConfig(ctx context.Context, c ChatbotConfig) (int64, error) {
	if c.ParamsJSON == "" {
		c.ParamsJSON = "{}"
	}
	q := s.sql.Insert("chatbot_configs").
		Columns("name", "primary_provider_id", "fallback_provider_id", "model", "system_prompt", "params_json").
		Values(c.Name, c.PrimaryProviderID, c.FallbackProviderID, c.Model, c.SystemPrompt, c.ParamsJSON).
		Suffix("ON CONFLICT(name) DO UPDATE SET primary_provider_id=excluded.primary_provider_id, fallback_provider_id=excluded.fallback_provider_id, model=excluded.model, system_prompt=excluded.system_prompt, params_json=excluded.params_json")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build chatbot upsert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return 0, fmt.Errorf("upsert chatbot config: %w", err)
	}

	idQ := s.sql.Select("id").From("chatbot_configs").Where(sq.Eq{"name": c.Name})
	sqlStr, args, err = idQ.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build chatbot id query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("get chatbot id: %w", err)
	}
	return id, nil
}

// GetChatbotWithProviders fetches a chatbot config joined to its primary
// provider, plus the fallback provider if one is configured.
func (s *Store) GetChatbotWithProviders(ctx context.Context, chatbotID int64) (ChatbotWithProviders, error) {
	q := s.sql.Select("id", "name", "primary_provider_id", "fallback_provider_id", "model", "system_prompt", "params_json", "created_at").
		From("chatbot_configs").
		Where(sq.Eq{"id": chatbotID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ChatbotWithProviders{}, fmt.Errorf("build chatbot query: %w", err)
	}

	var c ChatbotConfig
	var fallbackID sql.NullInt64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&c.ID,
		&c.Name,
		&c.PrimaryProviderID,
		&fallbackID,
		&c.Model,
		&c.SystemPrompt,
		&c.ParamsJSON,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ChatbotWithProviders{}, ErrNotFound
		}
		return ChatbotWithProviders{}, fmt.Errorf("get chatbot config: %w", err)
	}
	if fallbackID.Valid {
		id := fallbackID.Int64
		c.FallbackProviderID = &id
	}

	out := ChatbotWithProviders{ChatbotConfig: c}
	out.Primary, err = s.GetProviderByID(ctx, c.PrimaryProviderID)
	if err != nil {
		return ChatbotWithProviders{}, fmt.Errorf("resolve primary provider: %w", err)
	}
	if c.FallbackProviderID != nil {
		fb, err := s.GetProviderByID(ctx, *c.FallbackProviderID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return ChatbotWithProviders{}, fmt.Errorf("resolve fallback provider: %w", err)
		}
		if err == nil {
			out.Fallback = &fb
		}
	}
	return out, nil
}

func (s *Store) EnsureConversation(ctx context.Context, conv Conversation) error {
	q := s.sql.Insert("conversations").
		Columns("id", "chatbot_id", "user_id").
		Values(conv.ID, conv.ChatbotID, conv.UserID).
		Suffix("ON CONFLICT(id) DO NOTHING")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build ensure conversation query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, m Message) error {
	if strings.TrimSpace(m.MetaJSON) == "" {
		m.MetaJSON = "{}"
	}
	q := s.sql.Insert("messages").
		Columns("id", "conversation_id", "role", "content", "meta_json").
		Values(m.ID, m.ConversationID, m.Role, m.Content, m.MetaJSON)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build message insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	q := s.sql.Select("id", "conversation_id", "role", "content", "meta_json", "created_at").
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list messages query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.MetaJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func (s *Store) InsertUsage(ctx context.Context, u UsageRecord) error {
	q := s.sql.Insert("usage_records").
		Columns("chatbot_id", "provider_id", "model", "latency_ms", "success", "error", "token_estimate").
		Values(u.ChatbotID, u.ProviderID, u.Model, u.LatencyMS, u.Success, u.Error, u.TokenEstimate)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build usage insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

func (s *Store) ListUsage(ctx context.Context, limit uint64) ([]UsageRecord, error) {
	q := s.sql.Select("id", "chatbot_id", "provider_id", "model", "latency_ms", "success", "error", "token_estimate", "created_at").
		From("usage_records").
		OrderBy("created_at DESC").
		Limit(limit)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list usage query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	defer rows.Close()

	out := make([]UsageRecord, 0)
	for rows.Next() {
		var u UsageRecord
		var chatbotID, providerID sql.NullInt64
		if err := rows.Scan(&u.ID, &chatbotID, &providerID, &u.Model, &u.LatencyMS, &u.Success, &u.Error, &u.TokenEstimate, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		if chatbotID.Valid {
			id := chatbotID.Int64
			u.ChatbotID = &id
		}
		if providerID.Valid {
			id := providerID.Int64
			u.ProviderID = &id
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return out, nil
}

// TopDocuments returns the newest processed documents, most recent first.
func (s *Store) TopDocuments(ctx context.Context, limit uint64) ([]Document, error) {
	q := s.sql.Select("id", "title", "locator", "doc_type", "content", "processed", "created_at").
		From("documents").
		Where(sq.Eq{"processed": true}).
		OrderBy("created_at DESC").
		Limit(limit)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top documents query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("top documents: %w", err)
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Locator, &d.DocType, &d.Content, &d.Processed, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return out, nil
}

func (s *Store) InsertDocument(ctx context.Context, d Document) error {
	q := s.sql.Insert("documents").
		Columns("title", "locator", "doc_type", "content", "processed").
		Values(d.Title, d.Locator, d.DocType, d.Content, d.Processed)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build document insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) LogAction(ctx context.Context, e AuditEntry) error {
	if strings.TrimSpace(e.MetaJSON) == "" {
		e.MetaJSON = "{}"
	}
	if !json.Valid([]byte(e.MetaJSON)) {
		e.MetaJSON = "{}"
	}

	q := s.sql.Insert("audit_log").
		Columns("action", "meta_json").
		Values(e.Action, e.MetaJSON)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
