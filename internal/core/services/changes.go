package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
	"github.com/custodia-labs/testctx/internal/linediff"
)

// Ensure ChangeService implements the interface.
var _ driving.ChangeService = (*ChangeService)(nil)

// ChangeService derives change records from the version history.
type ChangeService struct {
	versions driven.VersionStore
}

// NewChangeService creates a change service.
func NewChangeService(versions driven.VersionStore) *ChangeService {
	return &ChangeService{versions: versions}
}

// GetChangeRecord compares the latest version with the one before it.
// Returns nil without error when the document has a single version.
func (s *ChangeService) GetChangeRecord(ctx context.Context, id domain.DocumentID) (*domain.ChangeRecord, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	latest, err := s.versions.Latest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get latest version: %w", err)
	}

	previous, err := s.versions.LatestBefore(ctx, id, latest.Version)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get previous version: %w", err)
	}

	return DetectChanges(previous, latest), nil
}

// CompareVersions compares two stored versions of a document.
func (s *ChangeService) CompareVersions(
	ctx context.Context, id domain.DocumentID, from, to int,
) (*domain.ChangeRecord, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if from < 1 || to < 1 {
		return nil, fmt.Errorf("%w: versions start at 1", domain.ErrInvalidInput)
	}

	older, err := s.versions.Get(ctx, id, from)
	if err != nil {
		return nil, fmt.Errorf("get version %d: %w", from, err)
	}
	newer, err := s.versions.Get(ctx, id, to)
	if err != nil {
		return nil, fmt.Errorf("get version %d: %w", to, err)
	}

	return DetectChanges(older, newer), nil
}

// History returns every version record of a document, oldest first.
func (s *ChangeService) History(ctx context.Context, id domain.DocumentID) ([]domain.VersionRecord, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	records, err := s.versions.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("get history: %w", domain.ErrNotFound)
	}
	return records, nil
}

// DetectChanges compares two version records of one document.
//
// Symbols are matched by kind and qualified name; repeated keys are paired
// by occurrence order. A matched pair with a different hash is modified,
// cosmetic when only comments or whitespace changed and behavioral
// otherwise. Any added or removed symbol is behavioral.
//
// A nil older record is treated as an empty document.
func DetectChanges(older, newer *domain.VersionRecord) *domain.ChangeRecord {
	if newer == nil {
		newer = &domain.VersionRecord{}
	}
	if older == nil {
		older = &domain.VersionRecord{DocumentID: newer.DocumentID}
	}

	record := &domain.ChangeRecord{
		DocumentID:  newer.DocumentID,
		FromVersion: older.Version,
		ToVersion:   newer.Version,
		Added:       []domain.Symbol{},
		Removed:     []domain.Symbol{},
		Modified:    []domain.ModifiedSymbol{},
		Lines:       linediff.Delta(older.Text, newer.Text),
		Severity:    domain.SeverityNone,
	}

	oldLines := domain.SplitLines(older.Text)
	newLines := domain.SplitLines(newer.Text)

	oldKeys := occurrenceKeys(older.Symbols)
	oldByKey := make(map[string]int, len(oldKeys))
	for i, key := range oldKeys {
		oldByKey[key] = i
	}
	matched := make([]bool, len(older.Symbols))

	for i, key := range occurrenceKeys(newer.Symbols) {
		sym := newer.Symbols[i]
		j, ok := oldByKey[key]
		if !ok {
			record.Added = append(record.Added, sym)
			record.Severity = record.Severity.Max(domain.SeverityBehavioral)
			continue
		}
		matched[j] = true
		old := older.Symbols[j]
		if old.Hash == sym.Hash {
			continue
		}

		mod := domain.ModifiedSymbol{
			Old:      old,
			New:      sym,
			Severity: modificationSeverity(old, sym),
			Lines: linediff.Delta(
				spanWithNewline(oldLines, old),
				spanWithNewline(newLines, sym),
			),
		}
		record.Modified = append(record.Modified, mod)
		record.Severity = record.Severity.Max(mod.Severity)
	}

	for j, sym := range older.Symbols {
		if !matched[j] {
			record.Removed = append(record.Removed, sym)
			record.Severity = record.Severity.Max(domain.SeverityBehavioral)
		}
	}

	return record
}

func modificationSeverity(old, sym domain.Symbol) domain.Severity {
	switch {
	case old.Complexity != sym.Complexity:
		return domain.SeverityBehavioral
	case old.NormalizedHash != "" && old.NormalizedHash == sym.NormalizedHash:
		return domain.SeverityCosmetic
	default:
		return domain.SeverityBehavioral
	}
}

// occurrenceKeys returns the match key of each symbol suffixed with its
// occurrence ordinal among symbols sharing that key.
func occurrenceKeys(symbols []domain.Symbol) []string {
	seen := make(map[string]int, len(symbols))
	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		base := sym.MatchKey()
		keys[i] = fmt.Sprintf("%s#%d", base, seen[base])
		seen[base]++
	}
	return keys
}

func spanWithNewline(lines []string, sym domain.Symbol) string {
	text := domain.SpanText(lines, sym.StartLine, sym.EndLine)
	if text == "" {
		return ""
	}
	return text + "\n"
}
