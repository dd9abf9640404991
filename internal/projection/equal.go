package projection

// SamePlacement compares every field of two placements except UpdatedAt.
//
// The reconciler uses it to decide whether UpdatedAt carries forward.
func SamePlacement(a, b Placement) bool {
	return a.Status == b.Status &&
		a.Origin == b.Origin &&
		a.AssetID == b.AssetID &&
		a.Path == b.Path &&
		a.Version == b.Version
}

// Equal reports whether two snapshots are structurally identical.
//
// Revision and the snapshot-level UpdatedAt are ignored: a candidate always
// carries the next revision. Placements are compared field by field
// (including UpdatedAt), never by identity.
func Equal(a, b *Snapshot) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ProjectDirectory != b.ProjectDirectory ||
		a.UnresolvedCount != b.UnresolvedCount ||
		!a.LastConvergedAt.Equal(b.LastConvergedAt) ||
		a.LastTriggerSource != b.LastTriggerSource {
		return false
	}
	if len(a.Placements) != len(b.Placements) {
		return false
	}
	for n, pa := range a.Placements {
		pb, ok := b.Placements[n]
		if !ok {
			return false
		}
		if !SamePlacement(pa, pb) || !pa.UpdatedAt.Equal(pb.UpdatedAt) {
			return false
		}
	}
	return true
}
