package activity

import "testing"

func TestTypeValid(t *testing.T) {
	for _, typ := range []Type{Running, Walking, Cycling} {
		if !typ.Valid() {
			t.Fatalf("expected %s to be valid", typ)
		}
	}
	if Type("swimming").Valid() {
		t.Fatalf("unknown type should be invalid")
	}
}

func TestHasSplits(t *testing.T) {
	if !Running.HasSplits() {
		t.Fatalf("running sessions track splits")
	}
	if Walking.HasSplits() || Cycling.HasSplits() {
		t.Fatalf("only running sessions track splits")
	}
}

func TestConfigFor(t *testing.T) {
	run := ConfigFor(Running)
	if run.MaxSpeedMps != 12 || run.MaxJumpDistanceM != 100 || run.BaseAccuracyM != 50 {
		t.Fatalf("unexpected running config: %+v", run)
	}
	cyc := ConfigFor(Cycling)
	if cyc.BaseAccuracyM != 75 || cyc.MaxVerticalSpeedMps != 10 {
		t.Fatalf("unexpected cycling config: %+v", cyc)
	}
	if ConfigFor(Walking).MaxSpeedMps >= run.MaxSpeedMps {
		t.Fatalf("walking speed cap should be below running")
	}
}

func TestGradeSignal(t *testing.T) {
	cases := []struct {
		acc  float64
		want SignalStrength
	}{
		{5, SignalStrong},
		{15, SignalMedium},
		{40, SignalWeak},
		{80, SignalNone},
	}
	for _, c := range cases {
		acc := c.acc
		if got := GradeSignal(&acc); got != c.want {
			t.Fatalf("accuracy %v: got %s want %s", c.acc, got, c.want)
		}
	}
	if GradeSignal(nil) != SignalSearching {
		t.Fatalf("missing accuracy should grade as searching")
	}
}
