package game

import "testing"

func TestResolveStage(t *testing.T) {
	stages := testCatalogs().Stages.Stages

	cases := []struct {
		score float64
		want  string
	}{
		{1.0, "critical"},
		{1.9, "critical"},
		{2.0, "developing"},
		{2.14, "developing"},
		{2.5, "advancing"},
		{3.4, "advancing"},
		{3.5, "leading"},
		{4.0, "leading"},
		{0.5, "critical"},  // below all bands falls back to the lowest
		{1.95, "critical"}, // inside a band gap falls back too
	}
	for _, tc := range cases {
		if got := ResolveStage(tc.score, stages); got.ID != tc.want {
			t.Fatalf("score %.2f: stage=%q want %q", tc.score, got.ID, tc.want)
		}
	}
}

func TestResolveStage_EmptyCatalog(t *testing.T) {
	got := ResolveStage(2.0, nil)
	if got.ID != "" {
		t.Fatalf("empty catalog should return zero stage, got %+v", got)
	}
}
