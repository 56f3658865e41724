package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/solarpull/solarpull/pkg/common"
	"github.com/solarpull/solarpull/pkg/metrics"
)

// Configured registers the portal flags and returns a Client that is ready
// once lflag.Configure has run.
func Configured(rec *metrics.Recorder) *Client {
	baseURL := lflag.String("portal-base-url", DefaultBaseURL, "Base URL of the SolrenView portal")
	cacheDir := lflag.String("portal-cache-dir", "./solectria_raw_csv", "Directory raw exports are cached in when --portal-cache=file")
	wait := lflag.Duration("portal-wait", 2*time.Second, "Minimum time between requests to the portal")
	timeout := lflag.Duration("portal-timeout", time.Minute, "Timeout for a single portal request")
	cacheKind := lflag.String("portal-cache", "file", "Where raw exports are cached (available: file, redis)")
	redisAddr := lflag.String("portal-redis-addr", "localhost:6379", "Redis address when --portal-cache=redis")

	c := NewClient(DefaultBaseURL, nil, nil, nil, rec)

	lflag.Do(func() {
		c.baseURL = strings.TrimRight(*baseURL, "/")
		c.client = common.HTTPClient(*timeout)
		c.limiter = NewLimiter(*wait)

		switch *cacheKind {
		case "file":
			c.cache = NewFileCache(*cacheDir)
		case "redis":
			rc, err := NewRedisCache(context.Background(), *redisAddr, "solarpull:export")
			if err != nil {
				panic(fmt.Sprintf("redis cache init failed: %v", err))
			}
			c.cache = rc
		default:
			panic(fmt.Sprintf("unknown portal cache: %s", *cacheKind))
		}
	})

	return c
}

