// Package matcher picks the manifest asset that satisfies a placement.
//
// Pure functions only: no I/O, no state beyond the derivation Policy.
package matcher

import (
	"sort"

	"github.com/roach88/placesync/internal/manifest"
)

// SelectBestAssetForPlacement returns the highest-version asset of kind
// whose derived placement number equals n, or nil if none match.
//
// Equal versions are ordered by ID then Path so the result does not
// depend on input order.
func (p Policy) SelectBestAssetForPlacement(assets []manifest.Asset, n int, kind string) *manifest.Asset {
	var best *manifest.Asset
	for i := range assets {
		a := &assets[i]
		if a.Type != kind {
			continue
		}
		if got, ok := p.ResolvePlacementNumber(*a); !ok || got != n {
			continue
		}
		if best == nil || outranks(a, best) {
			best = a
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// PlacementNumbers returns every placement number derivable from assets
// of kind, ascending and without duplicates.
func (p Policy) PlacementNumbers(assets []manifest.Asset, kind string) []int {
	seen := make(map[int]struct{})
	for _, a := range assets {
		if a.Type != kind {
			continue
		}
		if n, ok := p.ResolvePlacementNumber(a); ok {
			seen[n] = struct{}{}
		}
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func outranks(a, b *manifest.Asset) bool {
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return a.Path < b.Path
}
