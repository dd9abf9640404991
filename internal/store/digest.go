package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/placesync/internal/projection"
)

// DomainSnapshot prefixes snapshot digests.
// Version suffix enables future algorithm migration.
const DomainSnapshot = "placesync/snapshot/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the content digest of snap.
func Digest(snap *projection.Snapshot) (string, error) {
	data, err := canonicalJSON(snap)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainSnapshot, data), nil
}

// canonicalJSON renders snap with sorted keys, UTC timestamps and HTML
// escaping disabled, so equal snapshots always produce equal bytes.
func canonicalJSON(snap *projection.Snapshot) ([]byte, error) {
	placements := make(map[string]any, len(snap.Placements))
	for n, p := range snap.Placements {
		placements[strconv.Itoa(n)] = map[string]any{
			"asset_id":   p.AssetID,
			"path":       p.Path,
			"source":     string(p.Origin),
			"status":     string(p.Status),
			"updated_at": formatTime(p.UpdatedAt),
			"version":    p.Version,
		}
	}
	m := map[string]any{
		"last_converged_at":   formatTime(snap.LastConvergedAt),
		"last_trigger_source": string(snap.LastTriggerSource),
		"placements":          placements,
		"project_directory":   snap.ProjectDirectory,
		"revision":            snap.Revision,
		"unresolved_count":    snap.UnresolvedCount,
		"updated_at":          formatTime(snap.UpdatedAt),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime is the inverse of formatTime.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
