package stac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Reader loads a catalog tree by following child and item links.
type Reader struct {
	fetcher *Fetcher
	log     zerolog.Logger
}

func NewReader(fetcher *Fetcher, log zerolog.Logger) *Reader {
	return &Reader{fetcher: fetcher, log: log}
}

// CatalogPath maps a directory to the catalog.json inside it.
func CatalogPath(href string) string {
	if isRemote(href) {
		return href
	}
	if fi, err := os.Stat(href); err == nil && fi.IsDir() {
		return filepath.Join(href, "catalog.json")
	}
	return href
}

// ReadCatalog reads a catalog or collection and everything below it.
func (r *Reader) ReadCatalog(ctx context.Context, href string) (*Catalog, error) {
	href = absHref(CatalogPath(href))
	data, err := r.fetcher.Fetch(ctx, href)
	if err != nil {
		return nil, err
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("stac: %s: %w", href, err)
	}
	if cat.Type != TypeCatalog && cat.Type != TypeCollection {
		return nil, fmt.Errorf("stac: %s is not a valid catalog, found type %q", href, cat.Type)
	}
	cat.href = href
	for _, a := range cat.Assets {
		if a != nil {
			a.Href = resolveHref(href, a.Href)
		}
	}
	r.log.Debug().Str("href", href).Str("id", cat.ID).Msg("read catalog")

	for _, l := range cat.Links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch l.Rel {
		case RelChild:
			child, err := r.ReadCatalog(ctx, resolveHref(href, l.Href))
			if err != nil {
				return nil, err
			}
			cat.children = append(cat.children, child)
		case RelItem:
			item, err := r.ReadItem(ctx, resolveHref(href, l.Href))
			if err != nil {
				return nil, err
			}
			cat.items = append(cat.items, item)
		}
	}
	return &cat, nil
}

// ReadItem reads one item document. Relative asset hrefs are resolved
// against the item location.
func (r *Reader) ReadItem(ctx context.Context, href string) (*Item, error) {
	href = absHref(href)
	data, err := r.fetcher.Fetch(ctx, href)
	if err != nil {
		return nil, err
	}
	return ParseItem(data, href)
}

// ParseItem decodes an item document located at href.
func ParseItem(data []byte, href string) (*Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("stac: %s: %w", href, err)
	}
	if err := item.validate(); err != nil {
		return nil, err
	}
	item.href = href
	for _, a := range item.Assets {
		if a != nil {
			a.Href = resolveHref(href, a.Href)
		}
	}
	return &item, nil
}

// DocumentType returns the "type" member of a STAC JSON document, or ""
// when data is not a JSON object.
func DocumentType(data []byte) string {
	var doc struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &doc) != nil {
		return ""
	}
	return doc.Type
}

// ReadFirstItem reads href as an item, or as a catalog whose first item
// (depth first) is returned.
func (r *Reader) ReadFirstItem(ctx context.Context, href string) (*Item, error) {
	if strings.HasSuffix(CatalogPath(href), "catalog.json") || strings.HasSuffix(href, "collection.json") {
		cat, err := r.ReadCatalog(ctx, href)
		if err != nil {
			return nil, err
		}
		items := cat.AllItems()
		if len(items) == 0 {
			return nil, fmt.Errorf("stac: catalog %s has no items", href)
		}
		return items[0], nil
	}
	return r.ReadItem(ctx, href)
}

func absHref(href string) string {
	if isRemote(href) || filepath.IsAbs(href) {
		return href
	}
	if abs, err := filepath.Abs(href); err == nil {
		return abs
	}
	return href
}

// resolveHref resolves a link href relative to the document at base.
func resolveHref(base, href string) string {
	if isRemote(href) || filepath.IsAbs(href) {
		return href
	}
	if isRemote(base) {
		b, err := url.Parse(base)
		if err != nil {
			return href
		}
		ref, err := url.Parse(href)
		if err != nil {
			return href
		}
		return b.ResolveReference(ref).String()
	}
	return filepath.Clean(filepath.Join(filepath.Dir(base), filepath.FromSlash(path.Clean(href))))
}
