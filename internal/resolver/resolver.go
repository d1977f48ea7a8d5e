// Package resolver finds symbols by name across languages with
// different naming conventions: an exact tier, a convention-variant
// tier (get_user_name matches getUserName), and a bounded fuzzy tier.
package resolver

import (
	"context"
	"log/slog"
	"sort"

	"codegraph/internal/extract"
	"codegraph/internal/graphstore"
	"codegraph/internal/logging"
)

// Tier identifies which resolution stage produced a match.
type Tier string

const (
	TierExact      Tier = "exact"
	TierConvention Tier = "convention"
	TierFuzzy      Tier = "fuzzy"
)

// Match is one resolved candidate.
type Match struct {
	Symbol      extract.Symbol `json:"symbol"`
	WorkspaceID string         `json:"workspace_id"`
	Confidence  float64        `json:"confidence"`
	Tier        Tier           `json:"tier"`
	MatchedName string         `json:"matched_name"` // the variant that actually matched
}

// Resolver runs tiered name resolution against the store. Workspaces
// are searched in the order given; the first is the primary and wins
// ties against reference workspaces.
type Resolver struct {
	store *graphstore.Store
	log   *slog.Logger

	// FuzzyThreshold is the minimum similarity for the fuzzy tier.
	FuzzyThreshold float64

	// MaxResults caps the returned matches. Zero means no cap.
	MaxResults int

	// FindAll collects matches from every tier instead of stopping
	// at the first tier that produces any.
	FindAll bool
}

func New(store *graphstore.Store) *Resolver {
	return &Resolver{
		store:          store,
		log:            logging.Default("resolver"),
		FuzzyThreshold: 0.8,
		MaxResults:     20,
	}
}

// Resolve finds symbols named name. Tiers run in order and resolution
// stops at the first tier that produces any match, so an exact hit
// never competes with fuzzy candidates.
func (r *Resolver) Resolve(ctx context.Context, workspaces []graphstore.Workspace, name string) ([]Match, error) {
	return r.ResolveKind(ctx, workspaces, name, "")
}

// ResolveKind is Resolve restricted to one symbol kind. An empty kind
// matches everything.
func (r *Resolver) ResolveKind(ctx context.Context, workspaces []graphstore.Workspace, name string, kind extract.SymbolKind) ([]Match, error) {
	if name == "" {
		return nil, nil
	}

	var all []Match

	exact, err := r.lookup(ctx, workspaces, name, kind, TierExact, 1.0)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 && !r.FindAll {
		return r.rank(workspaces, exact), nil
	}
	all = append(all, exact...)

	var conventionMatches []Match
	for _, variant := range Variants(name) {
		found, err := r.lookup(ctx, workspaces, variant, kind, TierConvention, 0.9)
		if err != nil {
			return nil, err
		}
		conventionMatches = append(conventionMatches, found...)
	}
	if len(conventionMatches) > 0 && !r.FindAll {
		return r.rank(workspaces, conventionMatches), nil
	}
	all = append(all, conventionMatches...)

	fuzzy, err := r.fuzzy(ctx, workspaces, name, kind)
	if err != nil {
		return nil, err
	}
	if len(fuzzy) > 0 {
		r.log.Debug("fuzzy resolution",
			slog.String("name", name),
			slog.Int("candidates", len(fuzzy)))
	}
	all = append(all, fuzzy...)

	return r.rank(workspaces, dedupe(all)), nil
}

// dedupe keeps the first match per symbol, so an exact hit shadows
// the same symbol surfacing again from a lower tier in find-all mode.
func dedupe(matches []Match) []Match {
	seen := make(map[string]bool, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if seen[m.Symbol.ID] {
			continue
		}
		seen[m.Symbol.ID] = true
		out = append(out, m)
	}
	return out
}

func (r *Resolver) lookup(ctx context.Context, workspaces []graphstore.Workspace, name string, kind extract.SymbolKind, tier Tier, confidence float64) ([]Match, error) {
	var matches []Match
	for _, ws := range workspaces {
		symbols, err := r.store.SymbolsByName(ctx, ws.ID, name)
		if err != nil {
			return nil, err
		}
		for _, sym := range symbols {
			if kind != "" && sym.Kind != kind {
				continue
			}
			matches = append(matches, Match{
				Symbol:      sym,
				WorkspaceID: ws.ID,
				Confidence:  confidence,
				Tier:        tier,
				MatchedName: name,
			})
		}
	}
	return matches, nil
}

// fuzzy compares convention-free keys: candidates whose normalized
// word sequence is within the similarity threshold of the query's.
func (r *Resolver) fuzzy(ctx context.Context, workspaces []graphstore.Workspace, name string, kind extract.SymbolKind) ([]Match, error) {
	queryKey := NormalizedKey(name)
	if queryKey == "" {
		return nil, nil
	}

	var matches []Match
	for _, ws := range workspaces {
		names, err := r.store.SymbolNames(ctx, ws.ID)
		if err != nil {
			return nil, err
		}
		for _, candidate := range names {
			score := similarity(queryKey, NormalizedKey(candidate))
			if score < r.FuzzyThreshold {
				continue
			}
			symbols, err := r.store.SymbolsByName(ctx, ws.ID, candidate)
			if err != nil {
				return nil, err
			}
			for _, sym := range symbols {
				if kind != "" && sym.Kind != kind {
					continue
				}
				matches = append(matches, Match{
					Symbol:      sym,
					WorkspaceID: ws.ID,
					Confidence:  0.8 * score,
					Tier:        TierFuzzy,
					MatchedName: candidate,
				})
			}
		}
	}
	return matches, nil
}

// rank orders matches: confidence, then primary workspace before
// references, then definitions before imports, then (path, line).
func (r *Resolver) rank(workspaces []graphstore.Workspace, matches []Match) []Match {
	wsOrder := make(map[string]int, len(workspaces))
	for i, ws := range workspaces {
		wsOrder[ws.ID] = i
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if wsOrder[a.WorkspaceID] != wsOrder[b.WorkspaceID] {
			return wsOrder[a.WorkspaceID] < wsOrder[b.WorkspaceID]
		}
		aDef, bDef := isDefinition(a.Symbol.Kind), isDefinition(b.Symbol.Kind)
		if aDef != bDef {
			return aDef
		}
		if a.Symbol.Path != b.Symbol.Path {
			return a.Symbol.Path < b.Symbol.Path
		}
		return a.Symbol.StartLine < b.Symbol.StartLine
	})

	if r.MaxResults > 0 && len(matches) > r.MaxResults {
		matches = matches[:r.MaxResults]
	}
	return matches
}

// isDefinition separates declaring symbols from use-site kinds.
func isDefinition(kind extract.SymbolKind) bool {
	return kind != extract.KindImport
}

// similarity is a normalized edit-distance score in [0, 1] over
// convention-free keys.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return 1.0 - float64(editDistance(a, b))/float64(longest)
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
