package domain

// Severity classifies a change for regression-test prioritisation.
type Severity string

// Severity levels, ordered none < cosmetic < behavioral.
const (
	SeverityNone       Severity = "none"
	SeverityCosmetic   Severity = "cosmetic"
	SeverityBehavioral Severity = "behavioral"
)

// Rank returns the ordering of the severity.
func (s Severity) Rank() int {
	switch s {
	case SeverityCosmetic:
		return 1
	case SeverityBehavioral:
		return 2
	default:
		return 0
	}
}

// Max returns the higher of two severities.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// LineDelta counts line-level changes between two texts.
type LineDelta struct {
	// Added is the number of inserted lines.
	Added int `json:"added"`

	// Removed is the number of deleted lines.
	Removed int `json:"removed"`
}

// IsZero returns true when no lines changed.
func (d LineDelta) IsZero() bool {
	return d.Added == 0 && d.Removed == 0
}

// ModifiedSymbol pairs the two versions of a symbol whose source changed.
type ModifiedSymbol struct {
	// Old is the symbol in the older version.
	Old Symbol `json:"old"`

	// New is the symbol in the newer version.
	New Symbol `json:"new"`

	// Severity is cosmetic or behavioral.
	Severity Severity `json:"severity"`

	// Lines is the line delta within the symbol's span.
	Lines LineDelta `json:"lines"`
}

// Key returns the shared match key of the two versions.
func (m ModifiedSymbol) Key() string {
	return m.New.MatchKey()
}

// ChangeRecord describes the difference between two adjacent versions.
// It is derived on demand and never persisted.
type ChangeRecord struct {
	// DocumentID identifies the document.
	DocumentID DocumentID `json:"document_id"`

	// FromVersion is the older version number.
	FromVersion int `json:"from_version"`

	// ToVersion is the newer version number.
	ToVersion int `json:"to_version"`

	// Added lists symbols present only in the newer version.
	Added []Symbol `json:"added"`

	// Removed lists symbols present only in the older version.
	Removed []Symbol `json:"removed"`

	// Modified lists symbols present in both with a changed hash.
	Modified []ModifiedSymbol `json:"modified"`

	// Lines is the whole-document line delta.
	Lines LineDelta `json:"lines"`

	// Severity is the highest severity across all changes.
	Severity Severity `json:"severity"`
}

// IsEmpty returns true when no symbol changed.
func (r *ChangeRecord) IsEmpty() bool {
	return r == nil || (len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0)
}

// ChangedKeys returns the match keys of every added or modified symbol,
// plus every removed symbol, for use in ranking boosts.
func (r *ChangeRecord) ChangedKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	if r == nil {
		return keys
	}
	for i := range r.Added {
		keys[r.Added[i].MatchKey()] = struct{}{}
	}
	for i := range r.Removed {
		keys[r.Removed[i].MatchKey()] = struct{}{}
	}
	for i := range r.Modified {
		keys[r.Modified[i].Key()] = struct{}{}
	}
	return keys
}
