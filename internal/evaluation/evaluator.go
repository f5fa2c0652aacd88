package evaluation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/shoprank/internal/catalog"
	"github.com/kalambet/shoprank/internal/storage"
)

// Store is the slice of storage the evaluator needs.
type Store interface {
	ListSearchLogs(limit int) ([]storage.SearchLog, error)
	GetExplanations(logID string) ([]storage.Explanation, error)
	ListInteractionsByKinds(kinds []string) ([]storage.Interaction, error)
	InsertEvaluationMetric(m storage.EvaluationMetric) error
}

// clickLikeKinds are the interaction kinds that count as relevance signals.
var clickLikeKinds = []string{
	string(catalog.InteractionClick),
	string(catalog.InteractionSearch),
	string(catalog.InteractionAddToCart),
	string(catalog.InteractionPurchase),
}

// Evaluator runs offline over durable logs; it has no dependency on live
// scoring and never mutates prior metric rows.
type Evaluator struct {
	store  Store
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator over the given store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store, logger: slog.Default()}
}

// Run evaluates all recorded search logs against click-like interactions
// and appends one EvaluationMetric row per metric kind. A product is
// relevant for a logged query iff a click-like interaction exists for the
// same (session, query, product) triple. Runs over zero logs produce no
// rows. notes is carried onto every produced row.
func (e *Evaluator) Run(notes string) ([]storage.EvaluationMetric, error) {
	logs, err := e.store.ListSearchLogs(0)
	if err != nil {
		return nil, fmt.Errorf("listing search logs: %w", err)
	}
	if len(logs) == 0 {
		e.logger.Info("evaluation skipped: no search logs recorded")
		return nil, nil
	}

	interactions, err := e.store.ListInteractionsByKinds(clickLikeKinds)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}

	// relevant[(session, query)] is the set of product IDs with a
	// click-like interaction for that pair.
	relevant := make(map[string]map[string]bool)
	for _, ix := range interactions {
		key := sessionQueryKey(ix.SessionID, ix.Query)
		if relevant[key] == nil {
			relevant[key] = make(map[string]bool)
		}
		relevant[key][ix.ProductID] = true
	}

	var (
		precisionSum, ndcgSum, mrrSum float64
		recallSum                     float64
		recallQueries                 int
		excludedFromRecall            int
		evaluated                     int
	)

	for _, log := range logs {
		exps, err := e.store.GetExplanations(log.ID)
		if err != nil {
			return nil, fmt.Errorf("loading explanations for log %s: %w", log.ID, err)
		}

		rel := relevant[sessionQueryKey(log.SessionID, log.Query)]

		// flags is ordered by rank position; GetExplanations sorts on it.
		flags := make([]bool, len(exps))
		for i, exp := range exps {
			flags[i] = rel[exp.ProductID]
		}
		totalRelevant := len(rel)

		precisionSum += precisionAt(flags, cutoff)
		ndcgSum += ndcgAt(flags, cutoff, totalRelevant)
		mrrSum += reciprocalRank(flags)
		if r, ok := recallAt(flags, cutoff, totalRelevant); ok {
			recallSum += r
			recallQueries++
		} else {
			excludedFromRecall++
		}
		evaluated++
	}

	now := time.Now().UTC()
	metrics := []storage.EvaluationMetric{
		{
			ID:         uuid.New().String(),
			Kind:       string(MetricPrecision10),
			Value:      precisionSum / float64(evaluated),
			QueryCount: evaluated,
			Notes:      notes,
			CreatedAt:  now,
		},
		{
			ID:         uuid.New().String(),
			Kind:       string(MetricNDCG10),
			Value:      ndcgSum / float64(evaluated),
			QueryCount: evaluated,
			Notes:      notes,
			CreatedAt:  now,
		},
		{
			ID:         uuid.New().String(),
			Kind:       string(MetricMRR),
			Value:      mrrSum / float64(evaluated),
			QueryCount: evaluated,
			Notes:      notes,
			CreatedAt:  now,
		},
	}

	recallRow := storage.EvaluationMetric{
		ID:         uuid.New().String(),
		Kind:       string(MetricRecall10),
		QueryCount: recallQueries,
		Notes:      appendNote(notes, fmt.Sprintf("%d queries excluded (no known relevant items)", excludedFromRecall)),
		CreatedAt:  now,
	}
	if recallQueries > 0 {
		recallRow.Value = recallSum / float64(recallQueries)
	}
	metrics = append(metrics, recallRow)

	for _, m := range metrics {
		if err := e.store.InsertEvaluationMetric(m); err != nil {
			return nil, fmt.Errorf("inserting %s metric: %w", m.Kind, err)
		}
	}

	e.logger.Info("evaluation run completed",
		"queries", evaluated,
		"recall_queries", recallQueries,
		"excluded_from_recall", excludedFromRecall,
	)
	return metrics, nil
}

func sessionQueryKey(sessionID, query string) string {
	return sessionID + "\x00" + query
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + "; " + extra
}
