// Package export renders computed scenario sets to flat files for
// downstream consumers that want spreadsheets rather than JSON.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gridpulse/resload/pkg/forecast"
	"github.com/gridpulse/resload/pkg/scenario"
)

// Header is the column layout of exported CSV files. One row per scenario
// per hour, in the engine's deterministic scenario order.
var Header = []string{"model", "issue_time", "scenario_kind", "scenario_label", "utc_hour", "residual_load_value"}

// WriteCSV streams the scenario set to w.
func WriteCSV(w io.Writer, scenarios []scenario.Residual) error {
	if len(scenarios) == 0 {
		return fmt.Errorf("%w: nothing to export", forecast.ErrDataUnavailable)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := make([]string, len(Header))
	for _, s := range scenarios {
		row[0] = s.Model
		row[1] = s.Issue.UTC().Format(time.RFC3339)
		row[2] = string(s.Kind)
		row[3] = s.Label
		for h, v := range s.Series.Values {
			row[4] = s.Series.Hour(h).Format(time.RFC3339)
			row[5] = strconv.FormatFloat(v, 'f', 3, 64)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileName returns the canonical export file name for one model run,
// e.g. "resload_eceps_20260301T00.csv".
func FileName(model string, issue time.Time) string {
	return fmt.Sprintf("resload_%s_%s.csv", model, issue.UTC().Format("20060102T15"))
}

// WriteFile writes the scenario set to dir using the canonical file name and
// returns the full path. The file is written atomically via a temp file so a
// crashed export never leaves a truncated CSV behind.
func WriteFile(dir string, model string, issue time.Time, scenarios []scenario.Residual) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export dir: %w", err)
	}

	final := filepath.Join(dir, FileName(model, issue))
	tmp, err := os.CreateTemp(dir, ".resload-export-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, scenarios); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("renaming export: %w", err)
	}
	return final, nil
}
