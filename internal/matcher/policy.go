package matcher

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/placesync/internal/manifest"
)

// Field names one place a placement number can be read from.
type Field string

const (
	// FieldMetadataTag reads the explicit "placementNumber" metadata tag
	// ("placement_number" is accepted as an alias).
	FieldMetadataTag Field = "metadata_tag"

	// FieldLegacyScene reads the legacy top-level scene_number field.
	FieldLegacyScene Field = "legacy_scene"
)

// DefaultPrecedence prefers the explicit tag and falls back to the legacy field.
var DefaultPrecedence = []Field{FieldMetadataTag, FieldLegacyScene}

// metadataKeys are checked in order for FieldMetadataTag.
var metadataKeys = []string{"placementNumber", "placement_number"}

// Policy is the placement-number derivation rule.
//
// Selection and placement discovery both go through the same Policy value,
// so they can never disagree about which placements exist.
type Policy struct {
	precedence []Field
}

// NewPolicy builds a policy trying fields in the given order.
// An empty list yields DefaultPrecedence.
func NewPolicy(precedence ...Field) (Policy, error) {
	if len(precedence) == 0 {
		precedence = DefaultPrecedence
	}
	seen := make(map[Field]bool, len(precedence))
	for _, f := range precedence {
		switch f {
		case FieldMetadataTag, FieldLegacyScene:
		default:
			return Policy{}, fmt.Errorf("unknown placement field %q", f)
		}
		if seen[f] {
			return Policy{}, fmt.Errorf("duplicate placement field %q", f)
		}
		seen[f] = true
	}
	p := make([]Field, len(precedence))
	copy(p, precedence)
	return Policy{precedence: p}, nil
}

// DefaultPolicy returns the policy using DefaultPrecedence.
func DefaultPolicy() Policy {
	p, _ := NewPolicy()
	return p
}

// Precedence returns a copy of the configured field order.
func (p Policy) Precedence() []Field {
	fields := p.precedence
	if len(fields) == 0 {
		fields = DefaultPrecedence
	}
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// ResolvePlacementNumber derives the placement number of an asset.
// The first field in precedence order holding a non-negative integer wins.
func (p Policy) ResolvePlacementNumber(a manifest.Asset) (int, bool) {
	for _, f := range p.Precedence() {
		switch f {
		case FieldMetadataTag:
			for _, key := range metadataKeys {
				if n, ok := toPlacementNumber(a.Metadata[key]); ok {
					return n, true
				}
			}
		case FieldLegacyScene:
			if n, ok := toPlacementNumber(a.SceneNumber); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// maxPlacement bounds placement numbers regardless of how they were encoded.
const maxPlacement = math.MaxInt32

// toPlacementNumber accepts integral numbers in [0, maxPlacement] in the
// shapes JSON decoding produces, plus decimal strings.
func toPlacementNumber(v any) (int, bool) {
	var i int64
	switch n := v.(type) {
	case int:
		i = int64(n)
	case int64:
		i = n
	case float64:
		if n != math.Trunc(n) || n < 0 || n > maxPlacement {
			return 0, false
		}
		i = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, false
		}
		i = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		i = parsed
	default:
		return 0, false
	}
	if i < 0 || i > maxPlacement {
		return 0, false
	}
	return int(i), true
}
