package scenario

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
)

var testIssue = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func flatSeries(start time.Time, hours int, value float64) forecast.HourlySeries {
	values := make([]float64, hours)
	for i := range values {
		values[i] = value
	}
	return forecast.HourlySeries{Start: start, Values: values}
}

// testRenewable builds a well-formed renewable forecast: wind percentiles
// P10/median/P90 at 10/20/30, solar at zero, and memberCount flat members.
func testRenewable(t *testing.T, hours, memberCount int) forecast.Renewable {
	t.Helper()
	model := forecast.Model{Code: "testens", Label: "Test", Members: memberCount, HorizonDays: hours / 24}

	zero := func() forecast.PercentileSet {
		return forecast.PercentileSet{
			forecast.P10:    flatSeries(testIssue, hours, 0),
			forecast.Median: flatSeries(testIssue, hours, 0),
			forecast.P90:    flatSeries(testIssue, hours, 0),
		}
	}

	windPct := forecast.PercentileSet{
		forecast.P10:    flatSeries(testIssue, hours, 10),
		forecast.Median: flatSeries(testIssue, hours, 20),
		forecast.P90:    flatSeries(testIssue, hours, 30),
	}

	wind := make([]forecast.EnsembleMember, memberCount)
	solar := make([]forecast.EnsembleMember, memberCount)
	for i := 0; i < memberCount; i++ {
		// Member i produces i MW of wind so cross-member stats are easy to
		// verify by hand.
		wind[i] = forecast.EnsembleMember{Index: i, Series: flatSeries(testIssue, hours, float64(i))}
		solar[i] = forecast.EnsembleMember{Index: i, Series: flatSeries(testIssue, hours, 0)}
	}

	return forecast.Renewable{
		Model:            model,
		Issue:            testIssue,
		WindPercentiles:  windPct,
		SolarPercentiles: zero(),
		WindMembers:      wind,
		SolarMembers:     solar,
	}
}

func testDemand(t *testing.T, hours int) forecast.Demand {
	t.Helper()
	return forecast.Demand{
		Issue: testIssue,
		Percentiles: forecast.PercentileSet{
			forecast.P10:    flatSeries(testIssue, hours, 60),
			forecast.Median: flatSeries(testIssue, hours, 80),
			forecast.P90:    flatSeries(testIssue, hours, 100),
		},
	}
}

func testEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEngine_Compute_PercentileCrossing(t *testing.T) {
	e := testEngine()
	scenarios, err := e.Compute(testRenewable(t, 48, 3), testDemand(t, 48))
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	// Demand P90=100, median=80, P10=60; renewables P90=30, median=20, P10=10.
	// Crossing pairs worst-case demand with best-case renewables:
	//   P90 residual = 100 - 10 = 90
	//   P50 residual =  80 - 20 = 60
	//   P10 residual =  60 - 30 = 30
	want := map[string]float64{"P90": 90, "P50": 60, "P10": 30}
	for _, s := range scenarios {
		if s.Kind != KindPercentile {
			continue
		}
		for h, v := range s.Series.Values {
			if v != want[s.Label] {
				t.Fatalf("%s residual at hour %d = %v, want %v", s.Label, h, v, want[s.Label])
			}
		}
	}

	// The crossing must preserve strict ordering for monotone inputs.
	if !(want["P90"] > want["P50"] && want["P50"] > want["P10"]) {
		t.Error("P90 > P50 > P10 must hold for well-formed inputs")
	}
}

func TestEngine_Compute_Ordering(t *testing.T) {
	e := testEngine()
	scenarios, err := e.Compute(testRenewable(t, 48, 3), testDemand(t, 48))
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	wantLabels := []string{
		"P90", "P50", "P10",
		"ens_00", "ens_01", "ens_02",
		"ens_mean", "ens_std", "ens_min", "ens_max", "ens_P10", "ens_P50", "ens_P90",
	}
	if len(scenarios) != len(wantLabels) {
		t.Fatalf("Compute() returned %d scenarios, want %d", len(scenarios), len(wantLabels))
	}
	for i, s := range scenarios {
		if s.Label != wantLabels[i] {
			t.Errorf("scenarios[%d].Label = %q, want %q", i, s.Label, wantLabels[i])
		}
	}
}

func TestEngine_Compute_EnsembleMembers(t *testing.T) {
	e := testEngine()
	scenarios, err := e.Compute(testRenewable(t, 48, 3), testDemand(t, 48))
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	// Demand reference is the median (80); member i produces i MW of wind.
	for _, s := range scenarios {
		if s.Kind != KindEnsemble {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(s.Label, "ens_%d", &idx); err != nil {
			t.Fatalf("unexpected member label %q", s.Label)
		}
		want := 80 - float64(idx)
		if s.Series.Values[0] != want {
			t.Errorf("%s residual = %v, want %v", s.Label, s.Series.Values[0], want)
		}
	}
}

func TestEngine_Compute_EnsembleMeanConsistency(t *testing.T) {
	e := testEngine()
	scenarios, err := e.Compute(testRenewable(t, 48, 5), testDemand(t, 48))
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	var members [][]float64
	var meanRow []float64
	for _, s := range scenarios {
		switch {
		case s.Kind == KindEnsemble:
			members = append(members, s.Series.Values)
		case s.Label == "ens_mean":
			meanRow = s.Series.Values
		}
	}
	if len(members) != 5 || meanRow == nil {
		t.Fatalf("missing members (%d) or mean row", len(members))
	}

	for h := range meanRow {
		var sum float64
		for _, m := range members {
			sum += m[h]
		}
		if math.Abs(meanRow[h]-sum/float64(len(members))) > 1e-9 {
			t.Fatalf("ens_mean at hour %d = %v, want %v", h, meanRow[h], sum/float64(len(members)))
		}
	}
}

func TestEngine_Compute_Idempotent(t *testing.T) {
	e := testEngine()
	ren := testRenewable(t, 48, 4)
	dem := testDemand(t, 48)

	first, err := e.Compute(ren, dem)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	second, err := e.Compute(ren, dem)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated Compute() on identical inputs must yield identical sequences")
	}
}

func TestEngine_Compute_TruncatesToIntersection(t *testing.T) {
	e := testEngine()
	ren := testRenewable(t, 15*24, 3)
	dem := testDemand(t, 10*24) // demand is 5 days shorter

	scenarios, err := e.Compute(ren, dem)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	for _, s := range scenarios {
		if s.Series.Len() != 10*24 {
			t.Fatalf("%s spans %d hours, want %d (the intersection)", s.Label, s.Series.Len(), 10*24)
		}
	}
}

func TestEngine_Compute_InsufficientOverlap(t *testing.T) {
	e := testEngine()
	_, err := e.Compute(testRenewable(t, 12, 3), testDemand(t, 48))
	if !errors.Is(err, forecast.ErrInsufficientOverlap) {
		t.Errorf("Compute() error = %v, want ErrInsufficientOverlap", err)
	}
}

func TestEngine_Compute_RejectsBadInputs(t *testing.T) {
	e := testEngine()

	t.Run("non-monotonic demand", func(t *testing.T) {
		dem := testDemand(t, 48)
		dem.Percentiles[forecast.P10] = flatSeries(testIssue, 48, 500) // above P90
		_, err := e.Compute(testRenewable(t, 48, 3), dem)
		if !errors.Is(err, forecast.ErrDataIntegrity) {
			t.Errorf("Compute() error = %v, want ErrDataIntegrity", err)
		}
	})

	t.Run("member count mismatch", func(t *testing.T) {
		ren := testRenewable(t, 48, 3)
		ren.SolarMembers = ren.SolarMembers[:2]
		_, err := e.Compute(ren, testDemand(t, 48))
		if !errors.Is(err, forecast.ErrDataIntegrity) {
			t.Errorf("Compute() error = %v, want ErrDataIntegrity", err)
		}
	})

	t.Run("same-percentile crossing rejected", func(t *testing.T) {
		bad := *testEngine()
		bad.Crossings = []Crossing{{Target: "P90", Demand: forecast.P90, Renewables: forecast.P90}}
		_, err := bad.Compute(testRenewable(t, 48, 3), testDemand(t, 48))
		if !errors.Is(err, forecast.ErrValidation) {
			t.Errorf("Compute() error = %v, want ErrValidation", err)
		}
	})
}
