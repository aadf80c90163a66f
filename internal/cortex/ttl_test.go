package cortex

import "testing"

func TestImportanceToTTL(t *testing.T) {
	cases := []struct {
		importance float64
		want       int
	}{
		{-0.5, 30}, // below range clamps into lowest bucket
		{0.0, 30},
		{0.05, 30},
		{0.19, 30},
		{0.2, 90},
		{0.39, 90},
		{0.4, 180},
		{0.59, 180},
		{0.6, 300},
		{0.79, 300},
		{0.8, 360},
		{0.95, 360},
		{0.999, 360},
		{1.0, PermanentTTL},
		{1.5, PermanentTTL}, // above range promotes
	}
	for _, tc := range cases {
		if got := ImportanceToTTL(tc.importance); got != tc.want {
			t.Errorf("ImportanceToTTL(%v) = %d, want %d", tc.importance, got, tc.want)
		}
	}
}
