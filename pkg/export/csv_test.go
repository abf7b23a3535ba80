package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
	"github.com/gridpulse/resload/pkg/scenario"
)

func testScenarios(t *testing.T) []scenario.Residual {
	t.Helper()
	issue := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	series := func(vals ...float64) forecast.HourlySeries {
		return forecast.HourlySeries{Start: issue, Values: vals}
	}
	return []scenario.Residual{
		{Model: "eceps", Issue: issue, Kind: scenario.KindPercentile, Label: "P90", Series: series(50, 51)},
		{Model: "eceps", Issue: issue, Kind: scenario.KindEnsemble, Label: "ens_00", Series: series(42.5, 43)},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testScenarios(t)); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// Header plus 2 scenarios x 2 hours.
	if len(records) != 5 {
		t.Fatalf("record count = %d, want 5", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(Header, ",") {
		t.Errorf("header = %v", records[0])
	}

	want := []string{"eceps", "2026-03-01T00:00:00Z", "percentile", "P90", "2026-03-01T00:00:00Z", "50.000"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("row 1 col %d = %q, want %q", i, records[1][i], v)
		}
	}
	if records[3][2] != "ensemble" || records[3][3] != "ens_00" || records[3][5] != "42.500" {
		t.Errorf("ensemble row = %v", records[3])
	}
	if records[4][4] != "2026-03-01T01:00:00Z" {
		t.Errorf("second hour timestamp = %q", records[4][4])
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, nil)
	if !errors.Is(err, forecast.ErrDataUnavailable) {
		t.Fatalf("error = %v, want ErrDataUnavailable", err)
	}
}

func TestFileName(t *testing.T) {
	issue := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got, want := FileName("gfsens", issue), "resload_gfsens_20260301T12.csv"; got != want {
		t.Fatalf("FileName = %q, want %q", got, want)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	scenarios := testScenarios(t)

	path, err := WriteFile(dir, "eceps", scenarios[0].Issue, scenarios)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("path = %q not under %q", path, dir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), strings.Join(Header, ",")) {
		t.Errorf("file does not start with header")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}
