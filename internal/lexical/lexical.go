// Package lexical maintains an in-memory term index over source text
// for exact-identifier search. It is rebuilt per file on every update
// and holds no state in the database, so it is always consistent with
// the last delta the coordinator applied.
package lexical

import (
	"sort"
	"strings"
	"sync"

	"github.com/itstanner5216/codegraph-mcp/pkg/types"
)

// Match is one scored entity from a lexical search.
type Match struct {
	EntityID string
	Score    float64
}

type span struct {
	entityID  string
	startLine int
	endLine   int
}

type fileEntry struct {
	lines []string // lowercased source lines, 0-based
	spans []span
}

// Index holds per-file line tables and entity spans. All methods are
// safe for concurrent use.
type Index struct {
	mu    sync.RWMutex
	files map[string]*fileEntry
}

// New creates an empty index.
func New() *Index {
	return &Index{files: make(map[string]*fileEntry)}
}

// Update replaces the indexed content for a file. Pseudo entities and
// module entities are skipped: pseudos have no source span, and a
// module span covers the whole file and would swamp every ranking.
func (ix *Index) Update(filePath string, content []byte, entities []*types.Entity) {
	raw := strings.Split(string(content), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.ToLower(l)
	}

	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		if e.Kind.IsPseudo() || e.Kind == types.KindModule {
			continue
		}
		spans = append(spans, span{entityID: e.ID, startLine: e.StartLine, endLine: e.EndLine})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].entityID < spans[j].entityID })

	ix.mu.Lock()
	ix.files[filePath] = &fileEntry{lines: lines, spans: spans}
	ix.mu.Unlock()
}

// Remove drops a file from the index.
func (ix *Index) Remove(filePath string) {
	ix.mu.Lock()
	delete(ix.files, filePath)
	ix.mu.Unlock()
}

// FileCount reports how many files are currently indexed.
func (ix *Index) FileCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.files)
}

// Search tokenizes the query and scores every entity span by term
// occurrences within it. Lines where two or more distinct terms meet
// earn a proximity bonus. Results are sorted by score descending with
// entity id as the tie-break, truncated to limit.
func (ix *Index) Search(query string, limit int) []Match {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var matches []Match
	for _, entry := range ix.files {
		for _, sp := range entry.spans {
			score := scoreSpan(entry.lines, sp, terms)
			if score > 0 {
				matches = append(matches, Match{EntityID: sp.entityID, Score: score})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].EntityID < matches[j].EntityID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func scoreSpan(lines []string, sp span, terms []string) float64 {
	// StartLine/EndLine are 1-based inclusive.
	lo := sp.startLine - 1
	hi := sp.endLine
	if lo < 0 {
		lo = 0
	}
	if hi > len(lines) {
		hi = len(lines)
	}

	var score float64
	for _, line := range lines[lo:hi] {
		distinct := 0
		for _, term := range terms {
			hits := strings.Count(line, term)
			if hits > 0 {
				distinct++
				score += float64(hits)
			}
		}
		if distinct > 1 {
			score += float64(distinct)
		}
	}
	return score
}

// tokenize lowercases the query and splits it on anything that cannot
// appear in an identifier.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == '_':
			return false
		}
		return true
	})
	seen := make(map[string]bool, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			terms = append(terms, f)
		}
	}
	return terms
}
