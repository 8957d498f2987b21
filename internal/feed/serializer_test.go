package feed

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"anoa.com/notifeed/internal/model"
)

func TestJSONSerializerRoundTripIsStable(t *testing.T) {
	s := JSONSerializer{}
	base := time.Date(2026, 8, 23, 10, 30, 0, 123456789, time.UTC)
	seenAt := base.Add(time.Minute)

	group := model.AggregatedActivity{
		Group:      "like-2026-08-23",
		Activities: []model.Activity{{ID: uuid.New(), Actor: "alice", Verb: "like", Object: "post:1", Time: base}},
		CreatedAt:  base,
		UpdatedAt:  base,
		SeenAt:     &seenAt,
	}

	first, err := s.Encode(group)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	second, err := s.Encode(group)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if first != second {
		t.Fatalf("encoding is not deterministic:\n%s\n%s", first, second)
	}

	decoded, err := s.Decode(first)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	reencoded, err := s.Encode(decoded)
	if err != nil {
		t.Fatalf("Encode after decode failed: %v", err)
	}
	// required for value-equality deletes: decode must not change the form
	if first != reencoded {
		t.Fatalf("round trip changed the serialized form:\n%s\n%s", first, reencoded)
	}
}

func TestJSONSerializerRankFollowsUpdatedAt(t *testing.T) {
	s := JSONSerializer{}
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	older := model.AggregatedActivity{UpdatedAt: base}
	newer := model.AggregatedActivity{UpdatedAt: base.Add(time.Millisecond)}

	if s.Rank(newer) <= s.Rank(older) {
		t.Fatalf("rank not monotonic: newer=%f older=%f", s.Rank(newer), s.Rank(older))
	}
}

func TestJSONSerializerDecodeRejectsGarbage(t *testing.T) {
	s := JSONSerializer{}
	if _, err := s.Decode("{not json"); err == nil {
		t.Fatalf("expected decode error")
	}
}
