package remote

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"

	"github.com/etnz/fxfolio/date"
	"go.uber.org/zap"
)

type cacheModeKey struct{}

type cacheMode int

const (
	cacheUse     cacheMode = iota
	cacheRefresh           // skip the stored response, store the new one
	cacheSkip              // neither read nor store
)

// Refresh returns a context whose requests go to the network and replace the cached response.
func Refresh(ctx context.Context) context.Context {
	if modeOf(ctx) == cacheSkip {
		return ctx
	}
	return context.WithValue(ctx, cacheModeKey{}, cacheRefresh)
}

// NoCache returns a context whose requests bypass the cache. Use it for data that changes
// within the cache period, like today's prices.
func NoCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheModeKey{}, cacheSkip)
}

func modeOf(ctx context.Context) cacheMode {
	m, _ := ctx.Value(cacheModeKey{}).(cacheMode)
	return m
}

// diskCache stores successful responses on disk. Entries expire when the period changes.
type diskCache struct {
	base   http.RoundTripper
	dir    string
	period date.Period
	today  func() date.Date
	log    *zap.SugaredLogger
}

// key identifies a request within the current period.
func (c *diskCache) key(req *http.Request) string {
	id := c.period.Identifier(c.today())
	sum := sha1.Sum([]byte(fmt.Sprintf("%s %s %s", id, req.Method, req.URL.String())))
	return fmt.Sprintf("%s-%x", c.period, sum)
}

func (c *diskCache) RoundTrip(req *http.Request) (*http.Response, error) {
	mode := modeOf(req.Context())
	if req.Method != http.MethodGet || mode == cacheSkip {
		return c.base.RoundTrip(req)
	}
	key := c.key(req)
	if mode == cacheUse {
		if resp, err := c.get(key, req); err == nil {
			c.log.Debugw("cache hit", "host", req.URL.Host, "path", req.URL.Path)
			return resp, nil
		}
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	c.log.Debugw("http", "method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "status", resp.Status)
	if resp.StatusCode >= 300 {
		return resp, nil
	}
	if err := c.put(key, resp); err != nil {
		c.log.Warnw("cache write failed (ignored)", "error", err)
	}
	return resp, nil
}

func (c *diskCache) get(key string, req *http.Request) (*http.Response, error) {
	content, err := os.ReadFile(filepath.Join(c.dir, key))
	if err != nil {
		return nil, err
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(content)), req)
}

// put writes resp to disk. DumpResponse leaves resp.Body readable.
func (c *diskCache) put(key string, resp *http.Response) error {
	content, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, key), content, 0o644)
}
