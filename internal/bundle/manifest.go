package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/koios/iconforge/pkg/models"
)

// WebManifest is the installable web app descriptor written for platforms
// flagged with generateManifest
type WebManifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Icons           []ManifestIcon `json:"icons"`
	ThemeColor      string         `json:"theme_color"`
	BackgroundColor string         `json:"background_color"`
	Display         string         `json:"display"`
}

// ManifestIcon is one entry of WebManifest.Icons
type ManifestIcon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
}

// NewWebManifest lists every size of p with placeholder app metadata
func NewWebManifest(p *models.Platform) WebManifest {
	icons := make([]ManifestIcon, 0, len(p.Sizes))
	for _, size := range p.Sizes {
		icons = append(icons, ManifestIcon{
			Src:     "/" + size.Name + ".png",
			Sizes:   size.Dimensions(),
			Type:    "image/png",
			Purpose: "any maskable",
		})
	}

	return WebManifest{
		Name:            "Your App Name",
		ShortName:       "App",
		Icons:           icons,
		ThemeColor:      "#ffffff",
		BackgroundColor: "#ffffff",
		Display:         "standalone",
	}
}

// BuildManifest renders the manifest.json document for p
func BuildManifest(p *models.Platform) ([]byte, error) {
	data, err := json.MarshalIndent(NewWebManifest(p), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}
