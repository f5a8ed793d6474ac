package rules

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ExecutionRecords builds the append-only audit entries for one evaluation.
// Every evaluated rule gets a record, including ones that errored.
func ExecutionRecords(tenantID, decisionID string, results []domain.RuleResult) []*domain.RuleExecutionRecord {
	now := time.Now().UTC()
	records := make([]*domain.RuleExecutionRecord, 0, len(results))

	for _, r := range results {
		payload, err := json.Marshal(r)
		if err != nil {
			payload = []byte("{}")
		}
		records = append(records, &domain.RuleExecutionRecord{
			ID:              uuid.New().String(),
			TenantID:        tenantID,
			DecisionID:      decisionID,
			RuleID:          r.RuleID,
			Triggered:       r.Triggered,
			Result:          string(payload),
			ScoreAdjustment: r.ScoreAdjustment,
			StatusOverride:  r.StatusOverride,
			CreatedAt:       now,
		})
	}

	return records
}
