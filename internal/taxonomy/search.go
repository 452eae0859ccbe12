package taxonomy

import (
	"sort"
	"strings"

	"github.com/Veraticus/taxomap/internal/model"
)

// Search scores.
const (
	ScoreExact     = 100
	ScorePrefix    = 80
	ScoreSuffix    = 75
	ScoreSegment   = 70
	ScoreSubstring = 50
)

// SearchResult is a scored search hit.
type SearchResult struct {
	Category *model.Category
	Score    int
}

// Search scores every category against text and returns the best matches.
// A limit of zero or less returns all matches.
func (idx *Index) Search(text string, limit int) []SearchResult {
	return rank(idx.all, text, limit)
}

// SearchWithinSubtree is Search restricted to rootID and its descendants.
func (idx *Index) SearchWithinSubtree(rootID, text string, limit int) []SearchResult {
	root, ok := idx.byID[rootID]
	if !ok {
		return nil
	}
	return rank(idx.subtree(root), text, limit)
}

// subtree collects root and its descendants breadth first.
func (idx *Index) subtree(root *model.Category) []*model.Category {
	seen := map[string]bool{root.ID: true}
	queue := []*model.Category{root}
	for i := 0; i < len(queue); i++ {
		for _, child := range idx.children[queue[i].ID] {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			queue = append(queue, child)
		}
	}
	return queue
}

func rank(candidates []*model.Category, text string, limit int) []SearchResult {
	q := normalize(text)
	if q == "" {
		return nil
	}

	var results []SearchResult
	for _, cat := range candidates {
		if s := score(cat, q); s > 0 {
			results = append(results, SearchResult{Category: cat, Score: s})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Category.Level != b.Category.Level {
			return a.Category.Level > b.Category.Level
		}
		if a.Category.FullName != b.Category.FullName {
			return a.Category.FullName < b.Category.FullName
		}
		return a.Category.ID < b.Category.ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// score rates a normalized query against one category; zero means no match.
func score(cat *model.Category, q string) int {
	name := normalize(cat.Name)
	full := normalize(cat.FullName)

	switch {
	case name == q || full == q:
		return ScoreExact
	case strings.HasPrefix(name, q):
		return ScorePrefix
	case hasWordSuffix(full, q):
		return ScoreSuffix
	case strings.Contains(full, "> "+q):
		return ScoreSegment
	case strings.Contains(full, q) || strings.Contains(name, q):
		return ScoreSubstring
	default:
		return 0
	}
}

// hasWordSuffix reports whether s ends with q and q starts at a word boundary.
func hasWordSuffix(s, q string) bool {
	if !strings.HasSuffix(s, q) {
		return false
	}
	start := len(s) - len(q)
	return start == 0 || s[start-1] == ' '
}
