package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"

	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/metrics"
	"github.com/solarpull/solarpull/pkg/types"
)

// DefaultBaseURL is the public SolrenView portal.
const DefaultBaseURL = "https://solrenview.com"

// maxAttempts bounds how many times one export is requested when the
// transfer fails part way.
const maxAttempts = 2

// ErrTransient marks failures worth retrying: truncated bodies, dropped
// connections and server errors.
var ErrTransient = errors.New("transient portal error")

// errRejected marks a non-200 answer below 500. The portal serves those for
// windows and sites it has nothing for, so they mean "no export".
var errRejected = errors.New("portal rejected request")

// export names carry spaces, commas and parentheses
var downloadPathRe = regexp.MustCompile(`/downloads/[^"'<>\n]+?\.csv`)

// Client fetches raw CSV exports from the portal, going through the cache
// first and the shared Limiter for every request it sends.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *Limiter
	cache   Cache
	metrics *metrics.Recorder
	now     func() time.Time
}

// NewClient returns a Client. rec may be nil.
func NewClient(baseURL string, client *http.Client, limiter *Limiter, cache Cache, rec *metrics.Recorder) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: limiter,
		cache:   cache,
		metrics: rec,
		now:     time.Now,
	}
}

// Close releases the cache if it holds a connection.
func (c *Client) Close() error {
	if cl, ok := c.cache.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Fetch returns the raw export for spec. An empty string with a nil error
// means the portal had no export for the period. Successful downloads are
// stored in the cache before returning so a repeat call sends no requests.
func (c *Client) Fetch(ctx context.Context, site types.Site, spec types.WindowSpec) (string, error) {
	key := CacheKey(site, spec, c.now())

	text, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read cached export %s: %w", key, err)
	}
	if ok {
		c.metrics.CacheHit()
		log.Ctx(ctx).DebugContext(ctx, "export cache hit", slog.String("key", key))
		return text, nil
	}

	start := time.Now()
	defer c.metrics.ObserveFetch(start)

	var found bool
	for attempt := 1; ; attempt++ {
		text, found, err = c.fetchOnce(ctx, site.ID, spec)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrTransient) || attempt >= maxAttempts {
			return "", fmt.Errorf("failed to fetch export %s: %w", key, err)
		}
		c.metrics.Retry()
		log.Ctx(ctx).WarnContext(
			ctx,
			"retrying export fetch",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	if !found || text == "" {
		log.Ctx(ctx).InfoContext(ctx, "portal has no export for window", slog.String("key", key))
		return "", nil
	}

	if err := c.cache.Put(ctx, key, text); err != nil {
		return "", fmt.Errorf("failed to cache export %s: %w", key, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched export", slog.String("key", key), slog.Int("bytes", len(text)))
	return text, nil
}

func (c *Client) viewURL(siteID string, spec types.WindowSpec) string {
	// the portal wants the commas and '=' unescaped
	return c.baseURL + "/cgi-bin/cgihandler.cgi?view=" + spec.ViewString() + "&cond=site_id=" + siteID
}

// fetchOnce asks for the view page, pulls the download link out of it and
// downloads the export. found is false when the page had no link or the
// portal rejected either request.
func (c *Client) fetchOnce(ctx context.Context, siteID string, spec types.WindowSpec) (string, bool, error) {
	page, err := c.get(ctx, "view", c.viewURL(siteID, spec))
	if err != nil {
		return "", false, notServed(ctx, err)
	}
	path := extractDownloadPath(page)
	if path == "" {
		return "", false, nil
	}
	text, err := c.get(ctx, "download", c.baseURL+strings.ReplaceAll(path, " ", "%20"))
	if err != nil {
		return "", false, notServed(ctx, err)
	}
	return text, true, nil
}

// notServed swallows errRejected and passes every other error through.
func notServed(ctx context.Context, err error) error {
	if errors.Is(err, errRejected) {
		log.Ctx(ctx).InfoContext(ctx, "portal rejected window request", slog.Any("error", err))
		return nil
	}
	return err
}

func (c *Client) get(ctx context.Context, kind, u string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create %s request: %w", kind, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "requesting portal", slog.String("kind", kind), slog.String("url", u))
	c.metrics.PortalRequest(kind)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(fmt.Errorf("portal %s request failed: %w", kind, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%w: portal %s returned status: %d", ErrTransient, kind, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: portal %s returned status: %d", errRejected, kind, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classify(fmt.Errorf("failed to read portal %s body: %w", kind, err))
	}
	return string(b), nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// extractDownloadPath finds the "/downloads/....csv" path the view page
// embeds in its scripts. The last script that mentions one wins.
func extractDownloadPath(page string) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}
	var path string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
				if ch.Type != html.TextNode {
					continue
				}
				if m := downloadPathRe.FindString(ch.Data); m != "" {
					path = m
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return path
}
