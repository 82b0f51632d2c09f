package zarr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Store is a Zarr v3 hierarchy on the local filesystem.
type Store struct {
	Root string
}

// Create initialises a store with a root group. An existing store at
// root is removed first; a directory that is not a store is kept.
func Create(root string, attrs map[string]interface{}) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	s := &Store{Root: abs}
	if _, err := os.Stat(filepath.Join(abs, MetadataFile)); err == nil {
		if err := os.RemoveAll(abs); err != nil {
			return nil, fmt.Errorf("zarr: removing existing store: %w", err)
		}
	}
	if err := s.CreateGroup("", attrs); err != nil {
		return nil, err
	}
	return s, nil
}

// Open returns the store at root, which must hold a group.
func Open(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	s := &Store{Root: abs}
	if _, err := s.Group(""); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) nodePath(node string) string {
	node = strings.Trim(path.Clean("/"+node), "/")
	return filepath.Join(s.Root, filepath.FromSlash(node))
}

func (s *Store) writeJSON(node string, v interface{}) error {
	dir := s.nodePath(node)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644)
}

func (s *Store) readNode(node string) (map[string]json.RawMessage, []byte, error) {
	data, err := os.ReadFile(filepath.Join(s.nodePath(node), MetadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, node)
	}
	if err != nil {
		return nil, nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("zarr: %s: %w", node, err)
	}
	return doc, data, nil
}

func nodeType(doc map[string]json.RawMessage) string {
	var t string
	json.Unmarshal(doc["node_type"], &t)
	return t
}

// CreateGroup writes a group node, creating parents as needed.
func (s *Store) CreateGroup(node string, attrs map[string]interface{}) error {
	return s.writeJSON(node, &GroupMetadata{ZarrFormat: Format, NodeType: NodeGroup, Attributes: attrs})
}

func (s *Store) Group(node string) (*GroupMetadata, error) {
	doc, data, err := s.readNode(node)
	if err != nil {
		return nil, err
	}
	if nodeType(doc) != NodeGroup {
		return nil, fmt.Errorf("zarr: %q is not a group", node)
	}
	var g GroupMetadata
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// SetAttributes replaces the attributes of a group or array node.
func (s *Store) SetAttributes(node string, attrs map[string]interface{}) error {
	doc, _, err := s.readNode(node)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	doc["attributes"] = raw
	return s.writeJSON(node, doc)
}

// CreateArray writes the array metadata and drops any chunks a previous
// array at node left behind. Parent groups are not created implicitly;
// callers create them with CreateGroup.
func (s *Store) CreateArray(node string, meta *ArrayMetadata) (*Array, error) {
	if err := meta.validate(); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(filepath.Join(s.nodePath(node), chunkKey(nil, "/"))); err != nil {
		return nil, err
	}
	if err := s.writeJSON(node, meta); err != nil {
		return nil, err
	}
	return &Array{store: s, node: node, Meta: meta}, nil
}

func (s *Store) OpenArray(node string) (*Array, error) {
	doc, data, err := s.readNode(node)
	if err != nil {
		return nil, err
	}
	if nodeType(doc) != NodeArray {
		return nil, fmt.Errorf("zarr: %q is not an array", node)
	}
	var meta ArrayMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("zarr: %s: %w", node, err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	return &Array{store: s, node: node, Meta: &meta}, nil
}

// Members lists the direct children of a group holding a zarr.json,
// sorted by name.
func (s *Store) Members(node string) ([]string, error) {
	entries, err := os.ReadDir(s.nodePath(node))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.nodePath(node), e.Name(), MetadataFile)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Arrays opens every array that is a direct child of node.
func (s *Store) Arrays(node string) (map[string]*Array, error) {
	names, err := s.Members(node)
	if err != nil {
		return nil, err
	}
	out := map[string]*Array{}
	for _, n := range names {
		doc, _, err := s.readNode(path.Join(node, n))
		if err != nil {
			return nil, err
		}
		if nodeType(doc) != NodeArray {
			continue
		}
		a, err := s.OpenArray(path.Join(node, n))
		if err != nil {
			return nil, err
		}
		out[n] = a
	}
	return out, nil
}
