package models

import (
	_ "embed"
	"fmt"
	"os"
	"path"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// FitHint selects how a source image is scaled into a target box
type FitHint string

const (
	FitIcon   FitHint = "icon"
	FitBanner FitHint = "banner"
	FitSplash FitHint = "splash"
)

// IconSize is one required output image of a platform
type IconSize struct {
	Name   string  `yaml:"name" json:"name" validate:"required"`
	Width  int     `yaml:"width" json:"width" validate:"gt=0"`
	Height int     `yaml:"height" json:"height" validate:"gt=0"`
	Folder string  `yaml:"folder" json:"folder,omitempty"`
	Type   FitHint `yaml:"type" json:"type,omitempty" validate:"omitempty,oneof=icon banner splash"`
}

// SizeKey identifies byte-identical outputs across platforms
type SizeKey struct {
	Folder string
	Name   string
	Width  int
	Height int
}

// Fit returns the size's fit hint, defaulting to FitIcon
func (s IconSize) Fit() FitHint {
	if s.Type == "" {
		return FitIcon
	}
	return s.Type
}

// Key returns the de-duplication key of the size
func (s IconSize) Key() SizeKey {
	return SizeKey{Folder: s.Folder, Name: s.Name, Width: s.Width, Height: s.Height}
}

// Path returns the archive path of the rendered PNG
func (s IconSize) Path() string {
	return JoinFolder(s.Folder, s.Name+".png")
}

// Dimensions formats the size as WxH
func (s IconSize) Dimensions() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Platform is a named target environment with its own icon requirements
type Platform struct {
	ID               string     `yaml:"id" json:"id" validate:"required"`
	Name             string     `yaml:"name" json:"name" validate:"required"`
	Description      string     `yaml:"description" json:"description"`
	Sizes            []IconSize `yaml:"sizes" json:"sizes" validate:"required,min=1,dive"`
	GenerateIco      bool       `yaml:"generateIco" json:"generateIco"`
	GenerateManifest bool       `yaml:"generateManifest" json:"generateManifest"`
}

// Folder returns the folder of the platform's first size; extra files live there
func (p *Platform) Folder() string {
	if len(p.Sizes) == 0 {
		return ""
	}
	return p.Sizes[0].Folder
}

// Summary projects the platform into its listing form
func (p *Platform) Summary() PlatformSummary {
	return PlatformSummary{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		IconCount:        len(p.Sizes),
		GenerateIco:      p.GenerateIco,
		GenerateManifest: p.GenerateManifest,
	}
}

// JoinFolder joins an archive folder and file name, omitting an empty folder
func JoinFolder(folder, name string) string {
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

// Extra file names written next to a platform's sizes
const (
	LegacyIconFileName = "favicon.ico"
	ManifestFileName   = "manifest.json"
)

type catalogFile struct {
	Platforms []*Platform `yaml:"platforms" validate:"required,min=1,dive"`
}

// Catalog is the immutable table of platforms and their required sizes
type Catalog struct {
	platforms map[string]*Platform
	order     []string
}

// DefaultCatalog parses the catalog compiled into the binary
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(embeddedCatalog)
}

// LoadCatalog reads a catalog file from disk, falling back to the embedded
// catalog when path is empty
func LoadCatalog(catalogPath string) (*Catalog, error) {
	if catalogPath == "" {
		return DefaultCatalog()
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog decodes and checks a YAML catalog. Every (folder, name) pair
// must map to a single set of dimensions across the whole catalog so that
// equal de-duplication keys always mean equal output.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	c := &Catalog{
		platforms: make(map[string]*Platform, len(file.Platforms)),
		order:     make([]string, 0, len(file.Platforms)),
	}

	paths := make(map[string]IconSize)
	for _, p := range file.Platforms {
		if _, exists := c.platforms[p.ID]; exists {
			return nil, fmt.Errorf("invalid catalog: duplicate platform id %q", p.ID)
		}

		seen := make(map[string]struct{}, len(p.Sizes))
		for _, size := range p.Sizes {
			sizePath := size.Path()
			if _, dup := seen[sizePath]; dup {
				return nil, fmt.Errorf("invalid catalog: platform %q lists %s twice", p.ID, sizePath)
			}
			seen[sizePath] = struct{}{}

			if prev, ok := paths[sizePath]; ok && prev.Key() != size.Key() {
				return nil, fmt.Errorf("invalid catalog: %s is %s in one platform and %s in %q",
					sizePath, prev.Dimensions(), size.Dimensions(), p.ID)
			}
			paths[sizePath] = size
		}

		c.platforms[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	return c, nil
}

// ListPlatforms returns every platform in catalog order
func (c *Catalog) ListPlatforms() []*Platform {
	list := make([]*Platform, 0, len(c.order))
	for _, id := range c.order {
		list = append(list, c.platforms[id])
	}
	return list
}

// GetPlatform returns a platform by id
func (c *Catalog) GetPlatform(id string) (*Platform, bool) {
	p, ok := c.platforms[id]
	return p, ok
}

// IDs returns all platform ids in catalog order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// Summaries returns the read-only listing projection of the catalog
func (c *Catalog) Summaries() []PlatformSummary {
	summaries := make([]PlatformSummary, 0, len(c.order))
	for _, p := range c.ListPlatforms() {
		summaries = append(summaries, p.Summary())
	}
	return summaries
}

// TotalSizeCount returns the number of archive entries a request for ids
// produces: sizes shared across platforms count once, plus one per legacy
// icon and manifest file. Unknown ids contribute nothing.
func (c *Catalog) TotalSizeCount(ids []string) int {
	keys := make(map[SizeKey]struct{})
	extras := make(map[string]struct{})

	for _, id := range ids {
		p, ok := c.platforms[id]
		if !ok {
			continue
		}
		for _, size := range p.Sizes {
			keys[size.Key()] = struct{}{}
		}
		if p.GenerateIco {
			extras[JoinFolder(p.Folder(), LegacyIconFileName)] = struct{}{}
		}
		if p.GenerateManifest {
			extras[JoinFolder(p.Folder(), ManifestFileName)] = struct{}{}
		}
	}

	return len(keys) + len(extras)
}
