package stac

import (
	"encoding/json"
)

const (
	TypeCatalog    = "Catalog"
	TypeCollection = "Collection"
	TypeItem       = "Feature"
)

// Catalog is a STAC catalog, or a collection when Type is "Collection".
type Catalog struct {
	Type           string                          `json:"type"`
	StacVersion    string                          `json:"stac_version"`
	StacExtensions []string                        `json:"stac_extensions,omitempty"`
	ID             string                          `json:"id"`
	Title          string                          `json:"title,omitempty"`
	Description    string                          `json:"description"`
	Keywords       []string                        `json:"keywords,omitempty"`
	License        string                          `json:"license,omitempty"`
	Extent         *Extent                         `json:"extent,omitempty"`
	ItemAssets     map[string]*ItemAssetDefinition `json:"item_assets,omitempty"`
	Assets         map[string]*Asset               `json:"assets,omitempty"`
	Links          []*Link                         `json:"links"`
	ExtraFields    Fields                          `json:"-"`

	children []*Catalog
	items    []*Item
	href     string
}

var catalogKeys = []string{
	"type", "stac_version", "stac_extensions", "id", "title", "description",
	"keywords", "license", "extent", "item_assets", "assets", "links",
}

func NewCatalog(id, title, description string) *Catalog {
	return &Catalog{
		Type:        TypeCatalog,
		StacVersion: Version,
		ID:          id,
		Title:       title,
		Description: description,
		Links:       []*Link{},
	}
}

func NewCollection(id, title, description string, extent *Extent) *Catalog {
	c := NewCatalog(id, title, description)
	c.Type = TypeCollection
	c.License = "proprietary"
	c.Extent = extent
	return c
}

func (c *Catalog) IsCollection() bool {
	return c.Type == TypeCollection
}

func (c Catalog) MarshalJSON() ([]byte, error) {
	type plain Catalog
	return marshalInline(plain(c), c.ExtraFields)
}

func (c *Catalog) UnmarshalJSON(data []byte) error {
	type plain Catalog
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unmarshalExtra(data, catalogKeys)
	if err != nil {
		return err
	}
	*c = Catalog(p)
	c.ExtraFields = extra
	return nil
}

// AddChild attaches a child catalog or collection.
func (c *Catalog) AddChild(child *Catalog) {
	c.children = append(c.children, child)
}

func (c *Catalog) AddItem(item *Item) {
	if c.IsCollection() {
		item.Collection = c.ID
	}
	c.items = append(c.items, item)
}

func (c *Catalog) Children() []*Catalog { return c.children }
func (c *Catalog) Items() []*Item       { return c.items }

// FirstChild returns the first child, or nil.
func (c *Catalog) FirstChild() *Catalog {
	if len(c.children) == 0 {
		return nil
	}
	return c.children[0]
}

// AllItems returns the items of c and of all its descendants, depth first.
func (c *Catalog) AllItems() []*Item {
	out := append([]*Item(nil), c.items...)
	for _, child := range c.children {
		out = append(out, child.AllItems()...)
	}
	return out
}

// Href is the location the catalog was read from or saved to.
func (c *Catalog) Href() string { return c.href }

func (c *Catalog) AddExtension(uri string) {
	c.StacExtensions = addExtension(c.StacExtensions, uri)
}

func (c *Catalog) AddLink(l *Link) {
	c.Links = append(c.Links, l)
}

// LinksByRel returns the links with the given relation.
func (c *Catalog) LinksByRel(rel string) []*Link {
	return linksByRel(c.Links, rel)
}

func (c *Catalog) SetField(key string, value interface{}) {
	if c.ExtraFields == nil {
		c.ExtraFields = Fields{}
	}
	c.ExtraFields[key] = value
}

func (c *Catalog) AddAsset(key string, a *Asset) {
	if c.Assets == nil {
		c.Assets = map[string]*Asset{}
	}
	c.Assets[key] = a
}

func addExtension(exts []string, uri string) []string {
	for _, e := range exts {
		if e == uri {
			return exts
		}
	}
	return append(exts, uri)
}

func linksByRel(links []*Link, rel string) []*Link {
	var out []*Link
	for _, l := range links {
		if l.Rel == rel {
			out = append(out, l)
		}
	}
	return out
}

func dropLinks(links []*Link, rels ...string) []*Link {
	out := links[:0:0]
	for _, l := range links {
		drop := false
		for _, r := range rels {
			if l.Rel == r {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, l)
		}
	}
	return out
}
