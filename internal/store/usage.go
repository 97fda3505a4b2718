package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// RecordUsage accumulates delta into the (date, period) row, creating it on
// first write. model_breakdown tracks per-model token totals as a JSON
// object so the usage surface can answer "which model burned the budget"
// without a separate table.
func (r *SQLiteRepository) RecordUsage(ctx context.Context, delta UsageDelta) error {
	tx, err := r.conn().BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr(err, "record usage")
	}
	defer tx.Rollback()

	var existing UsageStat
	err = tx.GetContext(ctx, &existing,
		`SELECT * FROM usage_stats WHERE date = ? AND period = ?`, delta.Date, delta.Period)
	breakdown := map[string]int64{}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = UsageStat{Date: delta.Date, Period: delta.Period}
	case err != nil:
		return wrapErr(err, "look up usage stat %s/%s", delta.Date, delta.Period)
	default:
		_ = json.Unmarshal([]byte(existing.ModelBreakdownRaw), &breakdown)
	}

	existing.InputTokens += delta.InputTokens
	existing.OutputTokens += delta.OutputTokens
	existing.TotalTokens += delta.InputTokens + delta.OutputTokens
	existing.RequestCount += delta.RequestCount
	existing.ErrorCount += delta.ErrorCount
	if delta.Model != "" {
		breakdown[delta.Model] += delta.InputTokens + delta.OutputTokens
	}
	raw, err := json.Marshal(breakdown)
	if err != nil {
		return wrapErr(err, "encode model breakdown for %s/%s", delta.Date, delta.Period)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO usage_stats (date, period, input_tokens, output_tokens, total_tokens, request_count, error_count, model_breakdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, period) DO UPDATE SET
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			total_tokens = excluded.total_tokens,
			request_count = excluded.request_count,
			error_count = excluded.error_count,
			model_breakdown = excluded.model_breakdown`,
		existing.Date, existing.Period, existing.InputTokens, existing.OutputTokens,
		existing.TotalTokens, existing.RequestCount, existing.ErrorCount, string(raw),
	); err != nil {
		return wrapErr(err, "upsert usage stat %s/%s", delta.Date, delta.Period)
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(err, "commit usage stat %s/%s", delta.Date, delta.Period)
	}
	return nil
}

func (r *SQLiteRepository) ListUsageStats(ctx context.Context, period UsagePeriod, limit int) ([]*UsageStat, error) {
	if limit <= 0 {
		limit = 30
	}
	var out []*UsageStat
	err := r.conn().SelectContext(ctx, &out,
		`SELECT * FROM usage_stats WHERE period = ? ORDER BY date DESC LIMIT ?`, period, limit)
	if err != nil {
		return nil, wrapErr(err, "list usage stats for period %s", period)
	}
	return out, nil
}
