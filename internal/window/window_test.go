package window

import "testing"

// TestSlidingAssignerTumbling checks that size=60s, slide=60s assigns
// ts 0, 30_000, 65_000 to the expected tumbling windows.
func TestSlidingAssignerTumbling(t *testing.T) {
	a := NewTumblingAssigner(60_000)

	cases := []struct {
		ts   int64
		want Window
	}{
		{0, Window{0, 60_000}},
		{30_000, Window{0, 60_000}},
		{65_000, Window{60_000, 120_000}},
	}
	for _, c := range cases {
		ws := a.AssignWindows(c.ts)
		if len(ws) != 1 || ws[0] != c.want {
			t.Fatalf("AssignWindows(%d) = %v, want [%v]", c.ts, ws, c.want)
		}
	}
}

// TestSlidingAssignerOverlap covers a genuinely sliding (non-tumbling)
// assigner: ceil(size/slide) windows per record.
func TestSlidingAssignerOverlap(t *testing.T) {
	a := SlidingAssigner{Size: 30_000, Slide: 10_000}
	ws := a.AssignWindows(25_000)
	want := []Window{
		{0, 30_000},
		{10_000, 40_000},
		{20_000, 50_000},
	}
	if len(ws) != len(want) {
		t.Fatalf("AssignWindows(25000) = %v, want %v", ws, want)
	}
	for i := range want {
		if ws[i] != want[i] {
			t.Fatalf("window %d = %v, want %v", i, ws[i], want[i])
		}
	}
}

func TestSlidingAssignerNegativeTimestamp(t *testing.T) {
	a := NewTumblingAssigner(1000)
	ws := a.AssignWindows(-500)
	if len(ws) != 1 || ws[0] != (Window{-1000, 0}) {
		t.Fatalf("AssignWindows(-500) = %v", ws)
	}
}
