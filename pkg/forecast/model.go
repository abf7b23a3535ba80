// Package forecast defines the data model shared by every resload component:
// forecast models, hourly series, percentile sets, ensemble members and the
// error taxonomy. All timestamps are UTC and all series are hourly; anything
// that violates those two rules is rejected at construction time rather than
// tolerated downstream.
package forecast

import (
	"fmt"
	"sort"
)

// Model describes one numerical weather prediction ensemble model. The set of
// models is static configuration: it is validated once at startup and never
// mutated at runtime.
type Model struct {
	// Code is the short identifier used in the database and on the API
	// surface (e.g. "eceps").
	Code string

	// Label is the human-readable name shown to consumers.
	Label string

	// Members is the number of ensemble members the model publishes.
	Members int

	// HorizonDays is the nominal forecast horizon in days.
	HorizonDays int
}

// Models is the closed set of supported ensemble models.
var Models = map[string]Model{
	"eceps":     {Code: "eceps", Label: "ECMWF ENS", Members: 50, HorizonDays: 15},
	"ec46":      {Code: "ec46", Label: "ECMWF Extended", Members: 99, HorizonDays: 46},
	"gfsens":    {Code: "gfsens", Label: "GFS Ensemble", Members: 30, HorizonDays: 16},
	"ecaifsens": {Code: "ecaifsens", Label: "ECMWF AIFS ENS", Members: 50, HorizonDays: 15},
}

// ModelByCode looks up a model by its code.
// Returns ErrValidation for unknown codes.
func ModelByCode(code string) (Model, error) {
	m, ok := Models[code]
	if !ok {
		return Model{}, fmt.Errorf("%w: unknown model %q", ErrValidation, code)
	}
	return m, nil
}

// ModelCodes returns all supported model codes in sorted order.
func ModelCodes() []string {
	codes := make([]string, 0, len(Models))
	for code := range Models {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
