package sources

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridpulse/resload/pkg/forecast"
)

const (
	elementWind  = "wind"
	elementSolar = "solar"

	// issueListLimit bounds ListIssueTimes; the scheduler only ever needs
	// the most recent runs.
	issueListLimit = 20
)

// tableNamePattern restricts the configured table name to a schema-qualified
// identifier, since it is interpolated into query text.
var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// RenewableClient reads wind and solar forecast rows from PostgreSQL. Each
// row carries (location, model, element, issue, member, utc_datetime, value);
// the client assembles rows into percentile sets and ensemble members,
// summing across the configured locations.
type RenewableClient struct {
	pool      *pgxpool.Pool
	table     string
	locations []string
	logger    *slog.Logger
}

// NewRenewableClient validates the table name and location list and wraps an
// existing connection pool. The caller owns the pool lifecycle.
func NewRenewableClient(pool *pgxpool.Pool, table string, locations []string, logger *slog.Logger) (*RenewableClient, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil connection pool", forecast.ErrValidation)
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", forecast.ErrValidation, table)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: at least one location is required", forecast.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenewableClient{pool: pool, table: table, locations: locations, logger: logger}, nil
}

// ListIssueTimes returns the distinct forecast runs stored for the model,
// most recent first.
func (c *RenewableClient) ListIssueTimes(ctx context.Context, model forecast.Model) ([]time.Time, error) {
	q := fmt.Sprintf(
		`SELECT DISTINCT issue FROM %s WHERE location = $1 AND model = $2 AND element = $3 ORDER BY issue DESC LIMIT %d`,
		c.table, issueListLimit)

	rows, err := c.pool.Query(ctx, q, c.locations[0], model.Code, elementWind)
	if err != nil {
		return nil, fmt.Errorf("%w: listing issue times for %s: %v", forecast.ErrUpstreamUnavailable, model.Code, err)
	}
	defer rows.Close()

	var issues []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scanning issue time: %w", err)
		}
		issues = append(issues, ts.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing issue times for %s: %v", forecast.ErrUpstreamUnavailable, model.Code, err)
	}
	if len(issues) == 0 {
		return nil, fmt.Errorf("%w: no forecast runs stored for model %s", forecast.ErrDataUnavailable, model.Code)
	}
	return issues, nil
}

// Fetch retrieves one complete forecast run for the model, summed across the
// configured locations, and validates it against the model's shape.
func (c *RenewableClient) Fetch(ctx context.Context, model forecast.Model, issue time.Time) (forecast.Renewable, error) {
	issue = issue.UTC()

	var merged []forecastRow
	for _, loc := range c.locations {
		locRows, err := c.queryRun(ctx, loc, model.Code, issue)
		if err != nil {
			return forecast.Renewable{}, err
		}
		if len(locRows) == 0 {
			return forecast.Renewable{}, fmt.Errorf("%w: no rows for model %s issue %s at %s",
				forecast.ErrDataUnavailable, model.Code, issue.Format(time.RFC3339), loc)
		}
		merged, err = sumRows(merged, locRows)
		if err != nil {
			return forecast.Renewable{}, fmt.Errorf("merging location %s: %w", loc, err)
		}
	}

	ren, err := assembleRenewable(model, issue, merged)
	if err != nil {
		return forecast.Renewable{}, err
	}
	if err := ren.Validate(); err != nil {
		return forecast.Renewable{}, err
	}

	c.logger.Debug("fetched renewable run",
		"model", model.Code,
		"issue", issue.Format(time.RFC3339),
		"hours", ren.WindPercentiles[forecast.Median].Len(),
		"locations", len(c.locations))
	return ren, nil
}

// Availability reports the stored data range per configured location.
func (c *RenewableClient) Availability(ctx context.Context) ([]Availability, error) {
	q := fmt.Sprintf(
		`SELECT location, MIN(utc_datetime), MAX(utc_datetime), COUNT(*) FROM %s WHERE location = ANY($1) GROUP BY location ORDER BY location`,
		c.table)

	rows, err := c.pool.Query(ctx, q, c.locations)
	if err != nil {
		return nil, fmt.Errorf("%w: querying availability: %v", forecast.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var out []Availability
	for rows.Next() {
		var a Availability
		if err := rows.Scan(&a.Location, &a.From, &a.To, &a.Rows); err != nil {
			return nil, fmt.Errorf("scanning availability: %w", err)
		}
		a.From = a.From.UTC()
		a.To = a.To.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: querying availability: %v", forecast.ErrUpstreamUnavailable, err)
	}
	return out, nil
}

func (c *RenewableClient) queryRun(ctx context.Context, location, model string, issue time.Time) ([]forecastRow, error) {
	q := fmt.Sprintf(
		`SELECT utc_datetime, element, member, value FROM %s
		 WHERE location = $1 AND model = $2 AND issue = $3 AND element = ANY($4)
		 ORDER BY element, member, utc_datetime`,
		c.table)

	rows, err := c.pool.Query(ctx, q, location, model, issue, []string{elementWind, elementSolar})
	if err != nil {
		return nil, fmt.Errorf("%w: querying run %s/%s: %v", forecast.ErrUpstreamUnavailable, model, issue.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var out []forecastRow
	for rows.Next() {
		var r forecastRow
		if err := rows.Scan(&r.Time, &r.Element, &r.Member, &r.Value); err != nil {
			return nil, fmt.Errorf("scanning forecast row: %w", err)
		}
		r.Time = r.Time.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: querying run %s/%s: %v", forecast.ErrUpstreamUnavailable, model, issue.Format(time.RFC3339), err)
	}
	return out, nil
}

// forecastRow is one stored forecast value.
type forecastRow struct {
	Time    time.Time
	Element string
	Member  string
	Value   float64
}

type rowKey struct {
	time    time.Time
	element string
	member  string
}

// sumRows adds the values of next into acc keyed by (time, element, member).
// Summing across locations yields the aggregate fleet output. Every location
// must cover the same (time, element, member) set; a row present in only one
// location would leave a silently partial sum, so it is a data-integrity
// error instead.
func sumRows(acc, next []forecastRow) ([]forecastRow, error) {
	if acc == nil {
		out := make([]forecastRow, len(next))
		copy(out, next)
		return out, nil
	}
	if len(acc) != len(next) {
		return nil, fmt.Errorf("%w: location row count mismatch: %d vs %d",
			forecast.ErrDataIntegrity, len(acc), len(next))
	}
	idx := make(map[rowKey]int, len(acc))
	for i, r := range acc {
		idx[rowKey{r.Time, r.Element, r.Member}] = i
	}
	for _, r := range next {
		i, ok := idx[rowKey{r.Time, r.Element, r.Member}]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s at %s present in one location only",
				forecast.ErrDataIntegrity, r.Element, r.Member, r.Time.Format(time.RFC3339))
		}
		acc[i].Value += r.Value
	}
	return acc, nil
}

// assembleRenewable shapes raw rows into a forecast.Renewable. Percentile
// members carry label strings ("10%", "median", ...); ensemble members carry
// their 1-based number as a string.
func assembleRenewable(model forecast.Model, issue time.Time, rows []forecastRow) (forecast.Renewable, error) {
	type seriesKey struct {
		element string
		member  string
	}
	grouped := make(map[seriesKey][]forecast.Point)
	for _, r := range rows {
		k := seriesKey{r.Element, r.Member}
		grouped[k] = append(grouped[k], forecast.Point{Time: r.Time, Value: r.Value})
	}

	ren := forecast.Renewable{
		Model:            model,
		Issue:            issue,
		WindPercentiles:  forecast.PercentileSet{},
		SolarPercentiles: forecast.PercentileSet{},
	}

	windMembers := map[int]forecast.HourlySeries{}
	solarMembers := map[int]forecast.HourlySeries{}

	for k, pts := range grouped {
		series, err := forecast.NewHourlySeries(pts)
		if err != nil {
			return forecast.Renewable{}, fmt.Errorf("member %s/%s: %w", k.element, k.member, err)
		}

		if label, err := forecast.ParsePercentileLabel(k.member); err == nil {
			switch k.element {
			case elementWind:
				ren.WindPercentiles[label] = series
			case elementSolar:
				ren.SolarPercentiles[label] = series
			}
			continue
		}

		n, err := strconv.Atoi(k.member)
		if err != nil || n < 1 || n > model.Members {
			return forecast.Renewable{}, fmt.Errorf("%w: unrecognized member %q for model %s",
				forecast.ErrDataIntegrity, k.member, model.Code)
		}
		switch k.element {
		case elementWind:
			windMembers[n-1] = series
		case elementSolar:
			solarMembers[n-1] = series
		}
	}

	ren.WindMembers = orderedMembers(windMembers)
	ren.SolarMembers = orderedMembers(solarMembers)
	return ren, nil
}

func orderedMembers(byIndex map[int]forecast.HourlySeries) []forecast.EnsembleMember {
	indices := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	out := make([]forecast.EnsembleMember, 0, len(indices))
	for _, i := range indices {
		out = append(out, forecast.EnsembleMember{Index: i, Series: byIndex[i]})
	}
	return out
}
