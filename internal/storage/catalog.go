package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const catalogColumns = "provider_kind, model_name, display_name, description, context_length, vision, function_calling, input_cost_per_1k, output_cost_per_1k, tier, modality, is_deprecated, created_at, updated_at"

func (s *Store) ListCatalogByKind(ctx context.Context, providerKind string) ([]ModelCatalogEntry, error) {
	q := s.sql.Select(catalogColumns).
		From("model_catalog").
		Where(sq.Eq{"provider_kind": providerKind}).
		OrderBy("model_name ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list catalog query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	out := make([]ModelCatalogEntry, 0)
	for rows.Next() {
		var e ModelCatalogEntry
		if err := rows.Scan(
			&e.ProviderKind,
			&e.ModelName,
			&e.DisplayName,
			&e.Description,
			&e.ContextLength,
			&e.Vision,
			&e.FunctionCalling,
			&e.InputCostPer1K,
			&e.OutputCostPer1K,
			&e.Tier,
			&e.Modality,
			&e.IsDeprecated,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return out, nil
}

func (s *Store) InsertCatalogEntry(ctx context.Context, e ModelCatalogEntry) error {
	q := s.sql.Insert("model_catalog").
		Columns("provider_kind", "model_name", "display_name", "description", "context_length", "vision", "function_calling", "input_cost_per_1k", "output_cost_per_1k", "tier", "modality", "is_deprecated").
		Values(e.ProviderKind, e.ModelName, e.DisplayName, e.Description, e.ContextLength, e.Vision, e.FunctionCalling, e.InputCostPer1K, e.OutputCostPer1K, e.Tier, e.Modality, false)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build catalog insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert catalog entry: %w", err)
	}
	return nil
}

// UpdateCatalogEntry refreshes display metadata and clears the deprecation
// flag, covering both the plain-refresh and reactivation paths.
func (s *Store) UpdateCatalogEntry(ctx context.Context, e ModelCatalogEntry) error {
	q := s.sql.Update("model_catalog").
		Set("display_name", e.DisplayName).
		Set("description", e.Description).
		Set("context_length", e.ContextLength).
		Set("vision", e.Vision).
		Set("function_calling", e.FunctionCalling).
		Set("input_cost_per_1k", e.InputCostPer1K).
		Set("output_cost_per_1k", e.OutputCostPer1K).
		Set("tier", e.Tier).
		Set("modality", e.Modality).
		Set("is_deprecated", false).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"provider_kind": e.ProviderKind, "model_name": e.ModelName})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build catalog update query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update catalog entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeprecateCatalogEntry flags a row without removing it.
func (s *Store) DeprecateCatalogEntry(ctx context.Context, providerKind, modelName string) error {
	q := s.sql.Update("model_catalog").
		Set("is_deprecated", true).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"provider_kind": providerKind, "model_name": modelName})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build catalog deprecate query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("deprecate catalog entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
