package guardian

import "testing"

func TestCurseStateFor(t *testing.T) {
	th := DefaultCurseThresholds()

	tests := []struct {
		hours int
		want  CurseState
	}{
		{-1, CurseNormal},
		{0, CurseNormal},
		{23, CurseNormal},
		{24, CurseAnxiety},
		{47, CurseAnxiety},
		{48, CurseWeakness},
		{71, CurseWeakness},
		{72, CurseCursed},
		{1000, CurseCursed},
	}

	for _, tc := range tests {
		if got := th.StateFor(tc.hours); got != tc.want {
			t.Errorf("StateFor(%d) = %q, want %q", tc.hours, got, tc.want)
		}
	}
}

func TestCurseMonotonic(t *testing.T) {
	th := DefaultCurseThresholds()
	order := map[CurseState]int{CurseNormal: 0, CurseAnxiety: 1, CurseWeakness: 2, CurseCursed: 3}

	prev := CurseNormal
	for h := 0; h <= 200; h++ {
		cur := th.StateFor(h)
		if order[cur] < order[prev] {
			t.Fatalf("curse regressed from %q to %q at hour %d", prev, cur, h)
		}
		prev = cur
	}
}
