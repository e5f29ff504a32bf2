package watermark

import "testing"

// TestBoundedOutOfOrdernessMonotone feeds an assigner with delay=1s the
// timestamps 1000, 500, 2000, 1800; the reported watermarks must be
// none, none, 1000, 1000.
func TestBoundedOutOfOrdernessMonotone(t *testing.T) {
	a := NewBoundedOutOfOrdernessAssigner(1000)

	cases := []struct {
		ts       int64
		wantWM   int64
		wantOK   bool
	}{
		{1000, -1, false},
		{500, -1, false},
		{2000, 1000, true},
		{1800, 1000, true},
	}
	for i, c := range cases {
		a.Observe(c.ts)
		wm, ok := a.CurrentWatermark()
		if wm != c.wantWM || ok != c.wantOK {
			t.Fatalf("step %d: Observe(%d) -> CurrentWatermark() = (%d, %v), want (%d, %v)",
				i, c.ts, wm, ok, c.wantWM, c.wantOK)
		}
	}
}

func TestTrackerAlignedIsMinAcrossChannels(t *testing.T) {
	tr := NewTracker()

	if _, ok := tr.Aligned(); ok {
		t.Fatalf("Aligned() should report not-ok before any channel reports")
	}

	if wm, changed := tr.Update("a", 100); wm != 100 || !changed {
		t.Fatalf("Update(a, 100) = (%d, %v)", wm, changed)
	}
	if wm, changed := tr.Update("b", 50); wm != 50 || !changed {
		t.Fatalf("Update(b, 50) = (%d, %v)", wm, changed)
	}
	if wm, changed := tr.Update("a", 200); wm != 50 || changed {
		t.Fatalf("Update(a, 200) = (%d, %v), want aligned still 50 and unchanged", wm, changed)
	}
	if wm, changed := tr.Update("b", 150); wm != 150 || !changed {
		t.Fatalf("Update(b, 150) = (%d, %v)", wm, changed)
	}
}

func TestTrackerIgnoresRegression(t *testing.T) {
	tr := NewTracker()
	tr.Update("a", 100)
	if wm, changed := tr.Update("a", 50); wm != 100 || changed {
		t.Fatalf("regression should be ignored, got (%d, %v)", wm, changed)
	}
}

func TestTrackerRemoveChannelRecomputesMin(t *testing.T) {
	tr := NewTracker()
	tr.Update("a", 100)
	tr.Update("b", 50)
	wm, changed := tr.RemoveChannel("b")
	if wm != 100 || !changed {
		t.Fatalf("RemoveChannel(b) = (%d, %v), want (100, true)", wm, changed)
	}
}
