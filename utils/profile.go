package utils

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

type Chunks struct {
	Time int `yaml:"time"`
	Y    int `yaml:"y"`
	X    int `yaml:"x"`
}

// AssetProfile describes an asset definition published in a
// collection's item_assets.
type AssetProfile struct {
	Key         string   `yaml:"key"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Roles       []string `yaml:"roles"`
	MediaType   string   `yaml:"media_type"`
}

// VariableProfile maps an input asset band onto a cube variable.
type VariableProfile struct {
	Name        string `yaml:"name"`
	Asset       string `yaml:"asset"`
	Band        int    `yaml:"band"`
	Role        string `yaml:"role"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
}

// Parameter is one cf:parameter entry.
type Parameter struct {
	Name string `yaml:"name" json:"name"`
	Unit string `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// Profile is the conversion configuration of one command. Zero values
// in a profile file keep the command's defaults.
type Profile struct {
	Name                  string            `yaml:"name"`
	CatalogID             string            `yaml:"catalog_id"`
	CatalogDescription    string            `yaml:"catalog_description"`
	CollectionID          string            `yaml:"collection_id"`
	CollectionTitle       string            `yaml:"collection_title"`
	CollectionDescription string            `yaml:"collection_description"`
	ItemID                string            `yaml:"item_id"`
	Resolution            float64           `yaml:"resolution"`
	Chunks                Chunks            `yaml:"chunks"`
	MeasurementGroup      string            `yaml:"measurement_group"`
	AssetSelector         string            `yaml:"asset_selector"`
	Assets                []AssetProfile    `yaml:"assets"`
	Variables             []VariableProfile `yaml:"variables"`
	Product               string            `yaml:"product"`
	Output                string            `yaml:"output"`
	Templates             map[string]string `yaml:"templates"`
	Parameters            []Parameter       `yaml:"parameters"`
}

const (
	CommandToCollection = "to-collection"
	CommandToZarr       = "to-zarr"
	CommandToEOPF       = "to-eopf"
	CommandOccurrence   = "occurrence"
)

const cogMediaType = "image/tiff; application=geotiff; profile=cloud-optimized"

// DefaultProfile returns the built-in profile of a command.
func DefaultProfile(command string) *Profile {
	p := &Profile{
		Name:             command,
		Resolution:       10,
		Chunks:           Chunks{Time: 1, Y: 512, X: 512},
		MeasurementGroup: "measurements",
		Templates:        map[string]string{},
	}
	switch command {
	case CommandToCollection:
		p.CatalogID = "catalog"
		p.CatalogDescription = "water-bodies"
		p.CollectionID = "water-bodies"
		p.CollectionTitle = "Water bodies"
		p.CollectionDescription = "Detected water bodies"
		p.Assets = []AssetProfile{
			{Key: "water-bodies", Title: "Water Bodies", Description: "Water bodies detected", Roles: []string{"data", "visual"}, MediaType: cogMediaType},
			{Key: "ndwi", Title: "NDWI", Description: "Normalized Difference Water Index", Roles: []string{"data"}, MediaType: cogMediaType},
		}
	case CommandToEOPF:
		p.ItemID = "water-bodies"
		p.Product = "water_bodies_eopf"
		p.Output = "item.json"
		p.Variables = []VariableProfile{{Name: "water", Asset: "data", Band: 1, Role: "data", Description: "Detected water bodies"}}
		p.Templates = map[string]string{
			"store":         "{{ .Product }}.zarr",
			"data-variable": "{{ .Product }}.zarr/{{ .Group }}/{measurement}",
		}
		p.Parameters = []Parameter{{Name: "water"}}
	case CommandOccurrence:
		p.CatalogID = "catalog"
		p.CatalogDescription = "water-bodies-mean"
		p.ItemID = "occurrence"
		p.Output = "water_bodies_mean.tif"
		p.Variables = []VariableProfile{{Name: "water-bodies", Role: "data"}}
	}
	return p
}

// LoadProfile overlays the YAML document at path on the command's
// defaults.
func LoadProfile(path, command string) (*Profile, error) {
	p := DefaultProfile(command)
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Error while reading profile file: %s. Error: %v", path, err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("Error at YAML parsing profile document: %s. Error: %v", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %v", path, err)
	}
	return p, nil
}

// LoadAllProfiles reads every *.yaml profile below rootDir, keyed by the
// profile name, which defaults to the file name without extension.
func LoadAllProfiles(rootDir string) (map[string]*Profile, error) {
	profiles := make(map[string]*Profile)
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(info.Name())
		if info.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		name := strings.TrimSuffix(info.Name(), ext)
		p, err := LoadProfile(path, name)
		if err != nil {
			return err
		}
		if p.Name == "" {
			p.Name = name
		}
		profiles[p.Name] = p
		return nil
	})
	if err == nil && len(profiles) == 0 {
		err = fmt.Errorf("No profile found in %s", rootDir)
	}
	return profiles, err
}

// ResolveProfile picks the profile for command from path, which may be
// empty (built-in defaults), a file, or a directory of profiles.
func ResolveProfile(path, command string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(command), nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return LoadProfile(path, command)
	}
	profiles, err := LoadAllProfiles(path)
	if err != nil {
		return nil, err
	}
	if p, found := profiles[command]; found {
		return p, nil
	}
	return DefaultProfile(command), nil
}

func (p *Profile) Validate() error {
	if !(p.Resolution > 0) {
		return fmt.Errorf("resolution must be positive, got %v", p.Resolution)
	}
	if p.Chunks.Time <= 0 || p.Chunks.Y <= 0 || p.Chunks.X <= 0 {
		return fmt.Errorf("chunk sizes must be positive, got %+v", p.Chunks)
	}
	seen := map[string]bool{}
	for _, v := range p.Variables {
		if v.Name == "" {
			return fmt.Errorf("variable without a name")
		}
		if seen[v.Name] {
			return fmt.Errorf("variable %s declared twice", v.Name)
		}
		seen[v.Name] = true
		switch v.Role {
		case "", "data", "auxiliary":
		default:
			return fmt.Errorf("variable %s: role must be data or auxiliary, got %q", v.Name, v.Role)
		}
	}
	if _, err := CompileExpression(p.AssetSelector, SelectorVariables...); err != nil {
		return fmt.Errorf("asset_selector: %v", err)
	}
	return nil
}

// SelectorVariables are the names an asset_selector may reference.
var SelectorVariables = []string{"key", "type", "title", "role"}

// Variable returns the variable profile called name.
func (p *Profile) Variable(name string) (VariableProfile, bool) {
	for _, v := range p.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableProfile{}, false
}
