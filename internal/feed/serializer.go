package feed

import (
	"encoding/json"
	"fmt"

	"anoa.com/notifeed/internal/model"
)

// Serializer converts an aggregated activity to its canonical stored form
// and rank score. Encoding must be deterministic: the store deletes by value
// equality, so two groups with identical content must encode identically.
type Serializer interface {
	Encode(a model.AggregatedActivity) (string, error)
	Decode(value string) (model.AggregatedActivity, error)
	// Rank must be monotonic in UpdatedAt.
	Rank(a model.AggregatedActivity) float64
}

// JSONSerializer stores groups as JSON. json.Marshal over a fixed struct is
// deterministic and round-trip stable for RFC3339 timestamps.
type JSONSerializer struct{}

func (JSONSerializer) Encode(a model.AggregatedActivity) (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode aggregated activity: %w", err)
	}
	return string(b), nil
}

func (JSONSerializer) Decode(value string) (model.AggregatedActivity, error) {
	var a model.AggregatedActivity
	if err := json.Unmarshal([]byte(value), &a); err != nil {
		return model.AggregatedActivity{}, fmt.Errorf("failed to decode aggregated activity: %w", err)
	}
	return a, nil
}

func (JSONSerializer) Rank(a model.AggregatedActivity) float64 {
	return float64(a.UpdatedAt.UnixMilli())
}
