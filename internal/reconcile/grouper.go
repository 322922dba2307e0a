package reconcile

import (
	"sort"

	"github.com/AI-Template-SDK/senso-batchfix/internal/models"
)

// GroupByDay partitions runs by their creation day. Within each group the
// input order is preserved, so runs fetched in (day, created_at) order stay
// sorted by created_at inside their group.
func GroupByDay(runs []models.QuestionRun) map[string][]models.QuestionRun {
	groups := make(map[string][]models.QuestionRun)
	for _, run := range runs {
		day := run.Day()
		groups[day] = append(groups[day], run)
	}
	return groups
}

// SortedDays returns the group keys in ascending day order. Processing days
// in this order makes batch creation deterministic: the latest day's batch
// is always inserted last.
func SortedDays(groups map[string][]models.QuestionRun) []string {
	days := make([]string, 0, len(groups))
	for day := range groups {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}
