package sources

import (
	"errors"
	"testing"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
)

var testModel = forecast.Model{Code: "testens", Label: "test ensemble", Members: 2, HorizonDays: 1}

// runRows builds a complete 24h run for one location: percentile members
// 10%/median/90% plus two ensemble members, for wind and solar. base offsets
// every value so two locations produce distinct rows.
func runRows(issue time.Time, base float64) []forecastRow {
	var rows []forecastRow
	add := func(element, member string, value float64) {
		for h := 0; h < 24; h++ {
			rows = append(rows, forecastRow{
				Time:    issue.Add(time.Duration(h) * time.Hour),
				Element: element,
				Member:  member,
				Value:   base + value,
			})
		}
	}
	for _, element := range []string{elementWind, elementSolar} {
		add(element, "10%", 10)
		add(element, "median", 20)
		add(element, "90%", 30)
		add(element, "1", 15)
		add(element, "2", 25)
	}
	return rows
}

func TestSumRows(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sum, err := sumRows(nil, runRows(issue, 0))
	if err != nil {
		t.Fatal(err)
	}
	sum, err = sumRows(sum, runRows(issue, 100))
	if err != nil {
		t.Fatal(err)
	}

	if got, want := len(sum), len(runRows(issue, 0)); got != want {
		t.Fatalf("merged row count = %d, want %d", got, want)
	}
	for _, r := range sum {
		var want float64
		switch r.Member {
		case "10%":
			want = 120 // 10 + (100+10)
		case "median":
			want = 140
		case "90%":
			want = 160
		case "1":
			want = 130
		case "2":
			want = 150
		}
		if r.Value != want {
			t.Fatalf("summed %s/%s = %g, want %g", r.Element, r.Member, r.Value, want)
		}
	}
}

func TestSumRows_MismatchedTimelines(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := []forecastRow{{Time: issue, Element: elementWind, Member: "1", Value: 5}}

	cases := map[string][]forecastRow{
		"shifted hour": {{Time: issue.Add(time.Hour), Element: elementWind, Member: "1", Value: 7}},
		"extra row": {
			{Time: issue, Element: elementWind, Member: "1", Value: 7},
			{Time: issue, Element: elementWind, Member: "2", Value: 9},
		},
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			first, err := sumRows(nil, a)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := sumRows(first, b); !errors.Is(err, forecast.ErrDataIntegrity) {
				t.Fatalf("error = %v, want ErrDataIntegrity", err)
			}
		})
	}
}

func TestAssembleRenewable(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ren, err := assembleRenewable(testModel, issue, runRows(issue, 0))
	if err != nil {
		t.Fatal(err)
	}
	if err := ren.Validate(); err != nil {
		t.Fatal(err)
	}

	if got := ren.WindPercentiles[forecast.Median].Values[0]; got != 20 {
		t.Errorf("wind median[0] = %g, want 20", got)
	}
	if got := len(ren.WindMembers); got != 2 {
		t.Fatalf("wind members = %d, want 2", got)
	}
	// DB member "1" becomes index 0.
	if ren.WindMembers[0].Index != 0 || ren.WindMembers[0].Series.Values[0] != 15 {
		t.Errorf("member 0 = {%d, %g}, want {0, 15}",
			ren.WindMembers[0].Index, ren.WindMembers[0].Series.Values[0])
	}
	if ren.WindMembers[1].Series.Values[0] != 25 {
		t.Errorf("member 1 value = %g, want 25", ren.WindMembers[1].Series.Values[0])
	}
}

func TestAssembleRenewable_UnknownMember(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := append(runRows(issue, 0), forecastRow{
		Time: issue, Element: elementWind, Member: "weird", Value: 1,
	})

	_, err := assembleRenewable(testModel, issue, rows)
	if !errors.Is(err, forecast.ErrDataIntegrity) {
		t.Fatalf("error = %v, want ErrDataIntegrity", err)
	}
}

func TestAssembleRenewable_MemberOutOfRange(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := append(runRows(issue, 0), forecastRow{
		Time: issue, Element: elementWind, Member: "3", Value: 1,
	})

	_, err := assembleRenewable(testModel, issue, rows)
	if !errors.Is(err, forecast.ErrDataIntegrity) {
		t.Fatalf("error = %v, want ErrDataIntegrity", err)
	}
}

func TestAssembleRenewable_GapInSeries(t *testing.T) {
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var rows []forecastRow
	for _, r := range runRows(issue, 0) {
		// Drop hour 5 of one series.
		if r.Element == elementWind && r.Member == "1" && r.Time.Equal(issue.Add(5*time.Hour)) {
			continue
		}
		rows = append(rows, r)
	}

	_, err := assembleRenewable(testModel, issue, rows)
	if !errors.Is(err, forecast.ErrDataIntegrity) {
		t.Fatalf("error = %v, want ErrDataIntegrity", err)
	}
}

func TestNewRenewableClient_Validation(t *testing.T) {
	if _, err := NewRenewableClient(nil, "silver.metdesk_forecasts", []string{"de"}, nil); !errors.Is(err, forecast.ErrValidation) {
		t.Fatalf("nil pool: error = %v, want ErrValidation", err)
	}

	for _, table := range []string{"", "silver.metdesk;drop", "a.b.c", "1bad"} {
		if tableNamePattern.MatchString(table) {
			t.Fatalf("table %q should not match", table)
		}
	}
	for _, table := range []string{"forecasts", "silver.metdesk_forecasts", "_t1"} {
		if !tableNamePattern.MatchString(table) {
			t.Fatalf("table %q should match", table)
		}
	}
}
