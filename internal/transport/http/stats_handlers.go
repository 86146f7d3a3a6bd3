package transporthttp

import (
	"net/http"
	"strconv"
	"strings"

	spg "example.com/fairticket/internal/storage/postgres"
)

type statsResp struct {
	Totals  spg.StatsTotals   `json:"totals"`
	Buckets []spg.StatsBucket `json:"buckets,omitempty"`
}

const defaultWindowSeconds = int64(24 * 60 * 60)  // last 24h default
const maxWindowSeconds = int64(90 * 24 * 60 * 60) // cap at 90 days (guardrail)

// HandleGetStats serves activity aggregates from the persisted activity log.
func (d *ServerDeps) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	if d.Stats == nil {
		writeCodedProblem(w, http.StatusServiceUnavailable, codeStatsUnavailable, "activity persistence is disabled")
		return
	}

	q := r.URL.Query()
	fromStr := q.Get("from")
	toStr := q.Get("to")
	groupBy := q.Get("group_by")
	if groupBy != "" && groupBy != "day" {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "group_by must be day")
		return
	}

	now := d.Now().Unix()
	var from, to int64
	var err error

	switch {
	case fromStr == "" && toStr == "":
		from, to = now-defaultWindowSeconds, now
	case fromStr != "" && toStr == "":
		from, err = strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "from must be epoch seconds")
			return
		}
		to = now
	case fromStr == "" && toStr != "":
		to, err = strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "to must be epoch seconds")
			return
		}
		from = to - defaultWindowSeconds
	default:
		from, err = strconv.ParseInt(fromStr, 10, 64)
		if err != nil {
			writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "from must be epoch seconds")
			return
		}
		to, err = strconv.ParseInt(toStr, 10, 64)
		if err != nil {
			writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "to must be epoch seconds")
			return
		}
	}
	if from > to {
		writeCodedProblem(w, http.StatusBadRequest, codeInvalidParameters, "from must not be after to")
		return
	}

	// guardrail: cap excessively large ranges
	if to-from > maxWindowSeconds {
		from = to - maxWindowSeconds
	}

	f := spg.StatsFilter{
		Event: strings.TrimSpace(q.Get("event")),
		Kind:  strings.TrimSpace(q.Get("kind")),
		From:  from,
		To:    to,
	}

	ctx := r.Context()
	var resp statsResp
	resp.Totals, err = d.Stats.QueryTotals(ctx, f)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	if groupBy == "day" {
		resp.Buckets, err = d.Stats.QueryBucketsDaily(ctx, f)
		if err != nil {
			d.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
