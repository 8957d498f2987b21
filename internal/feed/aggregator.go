package feed

import (
	"anoa.com/notifeed/internal/model"
)

// Aggregator merges newly arrived raw activities into the existing collection
// of groups and returns the full resulting collection. Implementations must
// not mutate the existing slice or its groups.
type Aggregator interface {
	Merge(existing []model.AggregatedActivity, activities []model.Activity) []model.AggregatedActivity
}

// VerbDayAggregator groups activities by verb and calendar day (UTC):
// "alice liked 3 posts today" rather than three separate notifications.
type VerbDayAggregator struct{}

func (VerbDayAggregator) groupKey(a model.Activity) string {
	return a.Verb + "-" + a.Time.UTC().Format("2006-01-02")
}

func (g VerbDayAggregator) Merge(existing []model.AggregatedActivity, activities []model.Activity) []model.AggregatedActivity {
	merged := make([]model.AggregatedActivity, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, grp := range merged {
		index[grp.Group] = i
	}

	for _, act := range activities {
		key := g.groupKey(act)
		i, ok := index[key]
		if !ok {
			merged = append(merged, model.AggregatedActivity{
				Group:      key,
				Activities: []model.Activity{act},
				CreatedAt:  act.Time,
				UpdatedAt:  act.Time,
			})
			index[key] = len(merged) - 1
			continue
		}

		grp := merged[i]
		grp.Activities = append(append([]model.Activity(nil), grp.Activities...), act)
		if act.Time.After(grp.UpdatedAt) {
			grp.UpdatedAt = act.Time
		}
		// A group that absorbed a new activity is news again.
		grp.SeenAt = nil
		grp.ReadAt = nil
		merged[i] = grp
	}

	return merged
}
