package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StatsFilter narrows activity queries. Empty strings mean "no filter".
type StatsFilter struct {
	Event string
	Kind  string
	From  int64
	To    int64
}

type StatsTotals struct {
	Count        int64           `json:"count"`
	UniqueActors int64           `json:"unique_actors"`
	Volume       decimal.Decimal `json:"volume"`
	Fees         decimal.Decimal `json:"fees"`
}

type StatsBucket struct {
	BucketStart  int64           `json:"bucket_start"`
	Count        int64           `json:"count"`
	UniqueActors int64           `json:"unique_actors"`
	Volume       decimal.Decimal `json:"volume"`
}

func (f StatsFilter) where() (string, []any) {
	cond := "WHERE ts_epoch >= $1 AND ts_epoch <= $2"
	args := []any{f.From, f.To}
	idx := 3

	if f.Event != "" {
		cond += fmt.Sprintf(" AND event_handle=$%d", idx)
		args = append(args, f.Event)
		idx++
	}
	if f.Kind != "" {
		cond += fmt.Sprintf(" AND kind=$%d", idx)
		args = append(args, f.Kind)
	}
	return cond, args
}

func (db *DB) QueryTotals(ctx context.Context, f StatsFilter) (StatsTotals, error) {
	var res StatsTotals
	cond, args := f.where()

	sql := "SELECT COUNT(*)::bigint, COUNT(DISTINCT actor)::bigint, COALESCE(SUM(amount), 0)::text, COALESCE(SUM(fee), 0)::text FROM activity " + cond
	var volume, fees string
	row := db.Pool.QueryRow(ctx, sql, args...)
	if err := row.Scan(&res.Count, &res.UniqueActors, &volume, &fees); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}
	var err error
	if res.Volume, err = decimal.NewFromString(volume); err != nil {
		return res, fmt.Errorf("parse volume: %w", err)
	}
	if res.Fees, err = decimal.NewFromString(fees); err != nil {
		return res, fmt.Errorf("parse fees: %w", err)
	}
	return res, nil
}

func (db *DB) QueryBucketsDaily(ctx context.Context, f StatsFilter) ([]StatsBucket, error) {
	cond, args := f.where()

	sql := fmt.Sprintf(`
SELECT
  EXTRACT(EPOCH FROM date_trunc('day', to_timestamp(ts_epoch)))::bigint AS bucket_start,
  COUNT(*)::bigint AS cnt,
  COUNT(DISTINCT actor)::bigint AS uniq,
  COALESCE(SUM(amount), 0)::text AS volume
FROM activity
%s
GROUP BY 1
ORDER BY 1 ASC`, cond)

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatsBucket
	for rows.Next() {
		var b StatsBucket
		var volume string
		if err := rows.Scan(&b.BucketStart, &b.Count, &b.UniqueActors, &volume); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		if b.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("parse bucket volume: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
