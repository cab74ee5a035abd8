// Package metrics provides application-level counters using stdlib expvar.
// Counters are exported on the /debug/vars HTTP endpoint served by the API.
package metrics

import "expvar"

// Operation counters.
var (
	LookupTotal         = expvar.NewInt("rulings_lookup_total")
	LookupMiss          = expvar.NewInt("rulings_lookup_miss_total")
	UsageIncrements     = expvar.NewInt("rulings_usage_increment_total")
	UpsertTotal         = expvar.NewInt("rulings_upsert_total")
	DeleteTotal         = expvar.NewInt("rulings_delete_total")
	SuggestionSubmitted = expvar.NewInt("rulings_suggestion_submitted_total")
	SuggestionApproved  = expvar.NewInt("rulings_suggestion_approved_total")
	SuggestionRejected  = expvar.NewInt("rulings_suggestion_rejected_total")
	SeedImported        = expvar.NewInt("rulings_seed_imported_total")
	SeedSkipped         = expvar.NewInt("rulings_seed_skipped_total")
	SuggestionPurged    = expvar.NewInt("rulings_suggestion_purged_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }
