// Package osrm is a Router backed by an OSRM HTTP server. Responses are
// cached by a content hash of the method and its parameters.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kilianp07/fleetsim/core/cache"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/routing"
)

// Config describes the OSRM endpoint.
type Config struct {
	URL           string        `json:"url"`
	Profile       string        `json:"profile"`
	RatePerSecond float64       `json:"rate_per_second"`
	Burst         int           `json:"burst"`
	Timeout       time.Duration `json:"timeout"`
	MaxAttempts   int           `json:"max_attempts"`
	// Backoff is the first retry delay. It doubles on every attempt.
	Backoff time.Duration `json:"backoff"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:5000"
	}
	if c.Profile == "" {
		c.Profile = "driving"
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("osrm: status %d: %s", e.Code, e.Body)
}

// Client talks to OSRM.
type Client struct {
	cfg     Config
	session *http.Client
	limiter *rate.Limiter
	cache   cache.Store
	log     logger.Logger
}

// New returns a Client. store may be nil.
func New(cfg Config, store cache.Store, log logger.Logger) *Client {
	cfg.SetDefaults()
	if store == nil {
		store = cache.Nop{}
	}
	return &Client{
		cfg:     cfg,
		session: &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cache:   store,
		log:     log,
	}
}

type routeResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Duration float64           `json:"duration"`
		Distance float64           `json:"distance"`
		Legs     []json.RawMessage `json:"legs"`
	} `json:"routes"`
}

type nearestResponse struct {
	Code      string `json:"code"`
	Waypoints []struct {
		Location [2]float64 `json:"location"`
	} `json:"waypoints"`
}

// Route returns the fastest driving route between from and to.
func (c *Client) Route(ctx context.Context, from, to geo.Position) (routing.Route, error) {
	path := fmt.Sprintf("/route/v1/%s/%s;%s", c.cfg.Profile, coord(from), coord(to))
	q := url.Values{"overview": {"full"}, "geometries": {"geojson"}, "steps": {"false"}}
	var res routeResponse
	if err := c.getJSON(ctx, "route", path, q, &res); err != nil {
		return routing.Route{}, err
	}
	if len(res.Routes) == 0 {
		return routing.Route{}, fmt.Errorf("osrm: no route from %s to %s (%s)", coord(from), coord(to), res.Code)
	}
	r := res.Routes[0]
	out := routing.Route{DistanceMeters: r.Distance, DurationSeconds: r.Duration}
	out.Coordinates = make([]geo.Position, len(r.Geometry.Coordinates))
	for i, c := range r.Geometry.Coordinates {
		out.Coordinates[i] = geo.Position{Lon: c[0], Lat: c[1]}
	}
	return out, nil
}

// Nearest snaps p to the closest routable point.
func (c *Client) Nearest(ctx context.Context, p geo.Position) (geo.Position, error) {
	path := fmt.Sprintf("/nearest/v1/%s/%s", c.cfg.Profile, coord(p))
	var res nearestResponse
	if err := c.getJSON(ctx, "nearest", path, url.Values{"number": {"1"}}, &res); err != nil {
		return geo.Position{}, err
	}
	if len(res.Waypoints) == 0 {
		return geo.Position{}, fmt.Errorf("osrm: no waypoint near %s (%s)", coord(p), res.Code)
	}
	loc := res.Waypoints[0].Location
	return geo.Position{Lon: loc[0], Lat: loc[1]}, nil
}

func coord(p geo.Position) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
}

func (c *Client) getJSON(ctx context.Context, method, path string, q url.Values, out any) error {
	key, err := cache.Key(method, path, q.Encode())
	if err != nil {
		return err
	}
	if b, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warnf("osrm cache read: %v", err)
	} else if ok {
		if err := json.Unmarshal(b, out); err == nil {
			return nil
		}
	}

	body, err := c.doWithRetry(ctx, c.cfg.URL+path+"?"+q.Encode())
	if err != nil {
		return fmt.Errorf("osrm %s: %w", method, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("osrm %s: decode: %w", method, err)
	}
	if err := c.cache.Set(ctx, key, body); err != nil {
		c.log.Warnf("osrm cache write: %v", err)
	}
	return nil
}

// doWithRetry retries network errors, 429 and 5xx responses with
// exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, target string) ([]byte, error) {
	backoff := c.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, err := c.do(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusTooManyRequests, 500, 502, 503, 504:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == c.cfg.MaxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}
