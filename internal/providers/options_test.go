package providers

import (
	"testing"
)

func TestResolvePrecedence(t *testing.T) {
	defaults := Options{
		Temperature: Float(0.7),
		NumPredict:  Int(500),
		System:      String("be brief"),
	}
	caller := Options{
		Temperature: Float(1.2),
		TopK:        Int(40),
		Seed:        Int64(7),
	}
	forced := Options{Seed: Int64(99)}

	got := Resolve(defaults, caller, forced)

	if *got.Temperature != 1.2 {
		t.Errorf("Temperature = %v, want caller value 1.2", *got.Temperature)
	}
	if *got.NumPredict != 500 {
		t.Errorf("NumPredict = %v, want default 500", *got.NumPredict)
	}
	if *got.TopK != 40 {
		t.Errorf("TopK = %v, want 40", *got.TopK)
	}
	if *got.Seed != 99 {
		t.Errorf("Seed = %v, want forced 99", *got.Seed)
	}
	if *got.System != "be brief" {
		t.Errorf("System = %q", *got.System)
	}
	if got.TopP != nil {
		t.Errorf("TopP = %v, want unset", *got.TopP)
	}

	if *defaults.Temperature != 0.7 || defaults.Seed != nil {
		t.Error("Resolve() modified the defaults")
	}
}

func TestMergeCopiesStop(t *testing.T) {
	over := Options{Stop: []string{"\n\n"}}
	got := Options{}.Merge(over)
	got.Stop[0] = "changed"
	if over.Stop[0] != "\n\n" {
		t.Error("Merge() shares the Stop slice with its operand")
	}
}

func TestIsZero(t *testing.T) {
	if !(Options{}).IsZero() {
		t.Error("empty Options should be zero")
	}
	if (Options{Stop: []string{}}).IsZero() {
		t.Error("Options with an empty Stop list should not be zero")
	}
	if (Options{TopP: Float(0.9)}).IsZero() {
		t.Error("Options with TopP should not be zero")
	}
}

func TestRandomSeedsNeverRepeat(t *testing.T) {
	draws := []int64{5, 5, 5, 8, 8, 3}
	i := 0
	seeds := &RandomSeeds{
		last: -1,
		draw: func() int64 {
			v := draws[i]
			i++
			return v
		},
	}

	got := []int64{seeds.Next(), seeds.Next(), seeds.Next()}
	want := []int64{5, 8, 3}
	for j := range want {
		if got[j] != want[j] {
			t.Fatalf("Next() sequence = %v, want %v", got, want)
		}
	}
}

func TestRandomSeedsRange(t *testing.T) {
	seeds := NewRandomSeeds()
	prev := int64(-1)
	for range 1000 {
		s := seeds.Next()
		if s < 0 || s >= MaxSeed {
			t.Fatalf("seed %d out of range", s)
		}
		if s == prev {
			t.Fatalf("seed %d repeated", s)
		}
		prev = s
	}
}
