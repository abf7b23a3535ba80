package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gridpulse/resload/pkg/forecast"
)

// MaxHorizonDays is the longest demand horizon the upstream API serves.
// Longer requests are rejected locally before any network call.
const MaxHorizonDays = 46

// DemandClient fetches ensemble demand forecasts from the upstream curve
// API. It resolves the configured curve name to a numeric curve id once,
// attaches bearer tokens from its TokenProvider, and retries a request
// exactly once after an auth failure with a freshly fetched token.
type DemandClient struct {
	baseURL string
	curve   string
	tokens  TokenProvider
	client  *http.Client
	logger  *slog.Logger

	mu      sync.Mutex
	curveID int64
}

// NewDemandClient builds a demand client for one named curve.
func NewDemandClient(baseURL, curve string, tokens TokenProvider, client *http.Client, logger *slog.Logger) (*DemandClient, error) {
	if baseURL == "" || curve == "" {
		return nil, fmt.Errorf("%w: base url and curve name are required", forecast.ErrValidation)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token provider is required", forecast.ErrValidation)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DemandClient{
		baseURL: baseURL,
		curve:   curve,
		tokens:  tokens,
		client:  client,
		logger:  logger,
		curveID: -1,
	}, nil
}

// Fetch retrieves the demand ensemble issued at issue, converts the raw
// scenario values to percentile series, and validates the result.
func (c *DemandClient) Fetch(ctx context.Context, issue time.Time, horizonDays int) (forecast.Demand, error) {
	if horizonDays <= 0 || horizonDays > MaxHorizonDays {
		return forecast.Demand{}, fmt.Errorf("%w: horizon %d days outside 1..%d",
			forecast.ErrValidation, horizonDays, MaxHorizonDays)
	}
	issue = issue.UTC()

	id, err := c.resolveCurveID(ctx)
	if err != nil {
		return forecast.Demand{}, err
	}

	q := url.Values{}
	q.Set("issue_date", issue.Format(time.RFC3339))
	q.Set("from", issue.Format(time.RFC3339))
	q.Set("to", issue.Add(time.Duration(horizonDays)*24*time.Hour).Format(time.RFC3339))
	body, err := c.get(ctx, fmt.Sprintf("/instances/%d/latest", id), q)
	if err != nil {
		return forecast.Demand{}, err
	}

	dem, err := parseDemand(issue, body)
	if err != nil {
		return forecast.Demand{}, err
	}
	if err := dem.Validate(); err != nil {
		return forecast.Demand{}, err
	}

	c.logger.Debug("fetched demand forecast",
		"curve", c.curve,
		"issue", issue.Format(time.RFC3339),
		"hours", dem.Percentiles[forecast.Median].Len())
	return dem, nil
}

// resolveCurveID looks up the numeric id for the configured curve name and
// caches it for the lifetime of the client.
func (c *DemandClient) resolveCurveID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.curveID >= 0 {
		return c.curveID, nil
	}

	q := url.Values{}
	q.Set("name", c.curve)
	body, err := c.get(ctx, "/curves", q)
	if err != nil {
		return 0, err
	}

	id := gjson.GetBytes(body, `#(name=="`+c.curve+`").id`)
	if !id.Exists() {
		id = gjson.GetBytes(body, "0.id")
	}
	if !id.Exists() {
		return 0, fmt.Errorf("%w: no curve named %q", forecast.ErrDataUnavailable, c.curve)
	}

	c.curveID = id.Int()
	c.logger.Debug("resolved demand curve", "curve", c.curve, "id", c.curveID)
	return c.curveID, nil
}

// get performs an authenticated GET against the API, retrying once with a
// fresh token when the first attempt comes back unauthorized.
func (c *DemandClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", forecast.ErrUpstreamUnavailable, path, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading %s response: %w", path, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("token rejected, refreshing", "path", path)
			c.tokens.Invalidate()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp.StatusCode, path)
		}
		return body, nil
	}
}

// parseDemand converts an instance response into percentile series. Each
// point carries a timestamp and the raw ensemble scenario values for that
// hour; percentiles are computed locally so demand and renewables share one
// interpolation method.
func parseDemand(issue time.Time, body []byte) (forecast.Demand, error) {
	points := gjson.GetBytes(body, "points")
	if !points.IsArray() || len(points.Array()) == 0 {
		return forecast.Demand{}, fmt.Errorf("%w: demand response has no points", forecast.ErrDataUnavailable)
	}

	type hourSample struct {
		t      time.Time
		values []float64
	}
	var samples []hourSample
	var parseErr error

	points.ForEach(func(_, p gjson.Result) bool {
		ts, err := parsePointTime(p.Get("t"))
		if err != nil {
			parseErr = err
			return false
		}
		scen := p.Get("scenarios")
		if !scen.IsArray() {
			parseErr = fmt.Errorf("%w: point %s has no scenarios", forecast.ErrDataIntegrity, ts.Format(time.RFC3339))
			return false
		}
		vals := make([]float64, 0, len(scen.Array()))
		for _, v := range scen.Array() {
			vals = append(vals, v.Float())
		}
		if len(vals) == 0 {
			parseErr = fmt.Errorf("%w: point %s has empty scenarios", forecast.ErrDataIntegrity, ts.Format(time.RFC3339))
			return false
		}
		samples = append(samples, hourSample{t: ts, values: vals})
		return true
	})
	if parseErr != nil {
		return forecast.Demand{}, parseErr
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].t.Before(samples[j].t) })

	set := forecast.PercentileSet{}
	for _, label := range forecast.PercentileLabels {
		rank, _ := label.Rank()
		pts := make([]forecast.Point, len(samples))
		for i, s := range samples {
			pts[i] = forecast.Point{Time: s.t, Value: forecast.Quantile(s.values, float64(rank))}
		}
		series, err := forecast.NewHourlySeries(pts)
		if err != nil {
			return forecast.Demand{}, err
		}
		set[label] = series
	}
	for _, label := range []forecast.PercentileLabel{forecast.Mean, forecast.Median} {
		pts := make([]forecast.Point, len(samples))
		for i, s := range samples {
			var v float64
			if label == forecast.Mean {
				for _, x := range s.values {
					v += x
				}
				v /= float64(len(s.values))
			} else {
				v = forecast.Quantile(s.values, 50)
			}
			pts[i] = forecast.Point{Time: s.t, Value: v}
		}
		series, err := forecast.NewHourlySeries(pts)
		if err != nil {
			return forecast.Demand{}, err
		}
		set[label] = series
	}

	return forecast.Demand{Issue: issue, Percentiles: set}, nil
}

// parsePointTime accepts either an epoch-milliseconds number or an RFC3339
// string, the two timestamp encodings the upstream API emits.
func parsePointTime(v gjson.Result) (time.Time, error) {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC(), nil
	case gjson.String:
		ts, err := time.Parse(time.RFC3339, v.String())
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad point timestamp %q", forecast.ErrDataIntegrity, v.String())
		}
		return ts.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: point missing timestamp", forecast.ErrDataIntegrity)
	}
}
