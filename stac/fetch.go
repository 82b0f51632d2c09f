package stac

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nci/gomemcache/memcache"
	"github.com/rs/zerolog"
	"golang.org/x/net/context/ctxhttp"
)

const DefaultFetchTimeout = 60 * time.Second

// Fetcher reads STAC documents from local paths or http(s) URLs. Remote
// documents are cached in memcache when a client is configured.
type Fetcher struct {
	Client *http.Client
	Cache  *memcache.Client
	Log    zerolog.Logger
}

func NewFetcher(memcacheURI string, log zerolog.Logger) *Fetcher {
	f := &Fetcher{
		Client: &http.Client{Timeout: DefaultFetchTimeout},
		Log:    log,
	}
	if memcacheURI != "" {
		f.Cache = memcache.New(memcacheURI)
	}
	return f
}

func isRemote(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
}

func (f *Fetcher) Fetch(ctx context.Context, href string) ([]byte, error) {
	if !isRemote(href) {
		return os.ReadFile(strings.TrimPrefix(href, "file://"))
	}

	var key string
	if f.Cache != nil {
		sum := md5.Sum([]byte(href))
		key = hex.EncodeToString(sum[:])
		if cached, err := f.Cache.Get(key); err == nil {
			f.Log.Debug().Str("href", href).Msg("memcache hit")
			return cached.Value, nil
		}
	}

	resp, err := ctxhttp.Get(ctx, f.Client, href)
	if err != nil {
		return nil, fmt.Errorf("stac: fetch %s: %w", href, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stac: fetch %s: %s", href, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stac: fetch %s: %w", href, err)
	}

	if f.Cache != nil {
		// memcache may not retain this anyway
		if err := f.Cache.Set(&memcache.Item{Key: key, Value: body}); err != nil {
			f.Log.Debug().Err(err).Str("href", href).Msg("memcache set failed")
		}
	}
	return body, nil
}
