package stac

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Writer persists catalog trees in self-contained form: every link and
// local asset href is relative, and no self links are written.
type Writer struct {
	log     zerolog.Logger
	written []string
}

func NewWriter(log zerolog.Logger) *Writer {
	return &Writer{log: log}
}

// Written lists the files saved so far.
func (w *Writer) Written() []string {
	return w.written
}

func documentName(c *Catalog) string {
	if c.IsCollection() {
		return "collection.json"
	}
	return "catalog.json"
}

// Save normalises hrefs below rootDir and writes the whole tree.
func (w *Writer) Save(root *Catalog, rootDir string) error {
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return err
	}
	rootPath := filepath.Join(rootDir, documentName(root))
	return w.saveCatalog(root, rootPath, rootPath, "")
}

func (w *Writer) saveCatalog(c *Catalog, docPath, rootPath, parentPath string) error {
	dir := filepath.Dir(docPath)
	c.Links = dropLinks(c.Links, RelRoot, RelParent, RelChild, RelItem, RelSelf)

	links := []*Link{{Rel: RelRoot, Href: relHref(dir, rootPath), Type: MediaTypeJSON, Title: rootTitle(c, docPath, rootPath)}}
	if parentPath != "" {
		links = append(links, &Link{Rel: RelParent, Href: relHref(dir, parentPath), Type: MediaTypeJSON})
	}

	for _, child := range c.children {
		childPath := filepath.Join(dir, child.ID, documentName(child))
		if err := w.saveCatalog(child, childPath, rootPath, docPath); err != nil {
			return err
		}
		links = append(links, &Link{Rel: RelChild, Href: relHref(dir, childPath), Type: MediaTypeJSON, Title: child.Title})
	}
	for _, item := range c.items {
		itemPath := filepath.Join(dir, item.ID, item.ID+".json")
		item.Links = dropLinks(item.Links, RelRoot, RelParent, RelSelf, "collection")
		itemDir := filepath.Dir(itemPath)
		item.Links = append([]*Link{
			{Rel: RelRoot, Href: relHref(itemDir, rootPath), Type: MediaTypeJSON},
			{Rel: RelParent, Href: relHref(itemDir, docPath), Type: MediaTypeJSON},
		}, item.Links...)
		if c.IsCollection() {
			item.Links = append(item.Links, &Link{Rel: "collection", Href: relHref(itemDir, docPath), Type: MediaTypeJSON})
		}
		if err := w.writeItem(item, itemPath); err != nil {
			return err
		}
		links = append(links, &Link{Rel: RelItem, Href: relHref(dir, itemPath), Type: MediaTypeGeoJSON})
	}

	c.Links = append(links, c.Links...)
	for _, a := range c.Assets {
		a.Href = relHref(dir, a.Href)
	}
	c.href = docPath
	return w.write(c, docPath)
}

func rootTitle(c *Catalog, docPath, rootPath string) string {
	if docPath == rootPath {
		return c.Title
	}
	return ""
}

// SaveItem writes a standalone item document.
func (w *Writer) SaveItem(item *Item, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	item.Links = dropLinks(item.Links, RelSelf)
	return w.writeItem(item, path)
}

func (w *Writer) writeItem(item *Item, path string) error {
	dir := filepath.Dir(path)
	for _, a := range item.Assets {
		a.Href = relHref(dir, a.Href)
	}
	item.href = path
	return w.write(item, path)
}

func (w *Writer) write(v interface{}, path string) error {
	data, err := encodeIndent(v)
	if err != nil {
		return fmt.Errorf("stac: encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	w.written = append(w.written, path)
	w.log.Debug().Str("path", path).Msg("wrote stac document")
	return nil
}

// relHref makes an absolute local href relative to dir. Remote and
// already relative hrefs are returned unchanged.
func relHref(dir, href string) string {
	if isRemote(href) || !filepath.IsAbs(href) {
		return href
	}
	rel, err := filepath.Rel(dir, href)
	if err != nil {
		return href
	}
	rel = filepath.ToSlash(rel)
	if rel[0] != '.' {
		rel = "./" + rel
	}
	return rel
}
