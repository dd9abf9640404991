// Package manifest reads the project's generated-asset manifest.
package manifest

// Manifest is the on-disk asset manifest.
type Manifest struct {
	SchemaVersion string  `json:"schema_version"`
	Assets        []Asset `json:"assets"`
}

// Asset is one generated asset record.
type Asset struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Path    string `json:"path"`
	Version int    `json:"version"`

	// SceneNumber is the legacy placement field written by older
	// generators, kept as decoded (number or numeric string). Nil when
	// absent. Read it through matcher.Policy.
	SceneNumber any `json:"scene_number,omitempty"`

	// Metadata carries generator tags. The placement tag is read by
	// matcher.Policy.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AssetsOfType returns the assets whose Type equals kind, preserving order.
func (m *Manifest) AssetsOfType(kind string) []Asset {
	if m == nil {
		return nil
	}
	var out []Asset
	for _, a := range m.Assets {
		if a.Type == kind {
			out = append(out, a)
		}
	}
	return out
}
