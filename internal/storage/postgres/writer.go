package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"example.com/fairticket/internal/domain"
)

type Writer struct {
	db *DB
}

func NewWriter(db *DB) *Writer { return &Writer{db: db} }

var activityCols = []string{"id", "kind", "event_handle", "ticket_id", "actor", "counterparty", "amount", "fee", "detail", "ts_epoch"}

// InsertBatch inserts activity with ON CONFLICT DO NOTHING so a replayed
// record is stored once.
func (w *Writer) InsertBatch(ctx context.Context, items []domain.Activity) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*len(activityCols))

	argi := 1
	next := func(cast string) string {
		ph := fmt.Sprintf("$%d%s", argi, cast)
		argi++
		return ph
	}

	for _, a := range items {
		ph := make([]string, 0, len(activityCols))

		args = append(args, a.ID)
		ph = append(ph, next("::uuid"))

		args = append(args, string(a.Kind))
		ph = append(ph, next(""))

		// optionals are NULL when empty
		args = append(args, nullString(string(a.Event)))
		ph = append(ph, next(""))

		if a.TicketID == 0 {
			args = append(args, nil)
		} else {
			args = append(args, int64(a.TicketID))
		}
		ph = append(ph, next(""))

		args = append(args, string(a.Actor))
		ph = append(ph, next(""))

		args = append(args, nullString(string(a.Counterparty)))
		ph = append(ph, next(""))

		// amounts travel as text to keep full decimal precision
		args = append(args, a.Amount.String())
		ph = append(ph, next("::numeric"))

		args = append(args, a.Fee.String())
		ph = append(ph, next("::numeric"))

		if len(a.Detail) == 0 {
			args = append(args, nil)
		} else {
			b, err := json.Marshal(a.Detail)
			if err != nil {
				return 0, fmt.Errorf("marshal detail for %s: %w", a.ID, err)
			}
			args = append(args, string(b))
		}
		ph = append(ph, next("::jsonb"))

		args = append(args, a.Timestamp)
		ph = append(ph, next(""))

		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO activity (" + strings.Join(activityCols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT DO NOTHING"

	ct, err := w.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
