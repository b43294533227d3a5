package dialectic

import (
	"sort"
	"strconv"
	"strings"
)

// Keywords used for pattern keys. These are deliberately narrower than the
// classifier's sets so that the learning store stays decoupled from it.
var (
	patternSecurityKeywords    = []string{"auth", "security", "token", "jwt"}
	patternMVPKeywords         = []string{"mvp", "prototype", "hackathon", "quick"}
	patternPerformanceKeywords = []string{"optimize", "performance", "cache", "async"}
	patternDocExtensions       = []string{".md", ".rst", ".txt"}
)

// File type codes in a pattern key signature.
const (
	typeCodeSource = "src"
	typeCodeScript = "js"
	typeCodeWeb    = "web"
	typeCodeOther  = "other"
)

// PatternKey derives the canonical pattern key for an event:
//
//	sec:<bool>|mvp:<bool>|perf:<bool>|err:<bool>|doc:<bool>|type:<codes>
//
// codes are the sorted unique file type codes joined by "_", or "other".
// Equal events always produce equal keys regardless of file order.
func PatternKey(ev Event) string {
	pathText := strings.ToLower(strings.Join(ev.Files, " "))
	msgText := strings.ToLower(ev.Message)
	allText := pathText + " " + msgText

	hasDocs := false
	codes := make(map[string]bool)
	for _, f := range ev.Files {
		lower := strings.ToLower(f)
		for _, ext := range patternDocExtensions {
			if strings.HasSuffix(lower, ext) {
				hasDocs = true
			}
		}
		switch ClassifyFile(f) {
		case FileSource:
			codes[typeCodeSource] = true
		case FileScript, FileTypedScript:
			codes[typeCodeScript] = true
		case FileMarkup, FileStylesheet:
			codes[typeCodeWeb] = true
		}
	}

	sig := typeCodeOther
	if len(codes) > 0 {
		sig = strings.Join(sortedKeys(codes), "_")
	}

	parts := []string{
		"sec:" + strconv.FormatBool(countKeywords(patternSecurityKeywords, allText) > 0),
		"mvp:" + strconv.FormatBool(countKeywords(patternMVPKeywords, msgText) > 0),
		"perf:" + strconv.FormatBool(countKeywords(patternPerformanceKeywords, allText) > 0),
		"err:" + strconv.FormatBool(len(ev.Errors) > 0),
		"doc:" + strconv.FormatBool(hasDocs),
		"type:" + sig,
	}
	return strings.Join(parts, "|")
}

// legacyTypeCodes maps file type codes written by older tools to current ones.
var legacyTypeCodes = map[string]string{
	"py": typeCodeSource,
}

// CanonicalPatternKey rewrites a key written by older tools into the form
// PatternKey produces: boolean markers are lower-cased and legacy file type
// codes are mapped and re-sorted. Keys already in canonical form are
// returned unchanged.
func CanonicalPatternKey(key string) string {
	if key == "" {
		return key
	}
	parts := strings.Split(key, "|")
	for i, p := range parts {
		name, value, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		switch {
		case name == "type":
			parts[i] = name + ":" + canonicalTypeSignature(value)
		case strings.EqualFold(value, "true") || strings.EqualFold(value, "false"):
			parts[i] = name + ":" + strings.ToLower(value)
		}
	}
	return strings.Join(parts, "|")
}

func canonicalTypeSignature(sig string) string {
	codes := make(map[string]bool)
	for _, c := range strings.Split(sig, "_") {
		c = strings.ToLower(c)
		if mapped, ok := legacyTypeCodes[c]; ok {
			c = mapped
		}
		if c != "" && c != typeCodeOther {
			codes[c] = true
		}
	}
	if len(codes) == 0 {
		return typeCodeOther
	}
	return strings.Join(sortedKeys(codes), "_")
}

// PatternSimilarity is the Jaccard index of the "|"-delimited components of two keys.
// It is symmetric and returns 1 for identical keys.
func PatternSimilarity(a, b string) float64 {
	ca := componentSet(a)
	cb := componentSet(b)
	if len(ca) == 0 || len(cb) == 0 {
		return 0
	}
	inter := 0
	for c := range ca {
		if cb[c] {
			inter++
		}
	}
	union := len(ca) + len(cb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func componentSet(key string) map[string]bool {
	set := make(map[string]bool)
	if key == "" {
		return set
	}
	for _, c := range strings.Split(key, "|") {
		set[c] = true
	}
	return set
}

// PatternMatch pairs a stored pattern with its similarity to a query key.
type PatternMatch struct {
	Pattern    string
	Count      int
	Similarity float64
}

// Weight is the pattern's contribution per matching log entry.
func (m PatternMatch) Weight() float64 {
	return m.Similarity * float64(m.Count)
}

// PatternMatcher finds stored patterns similar to a key.
// Lets the learning store swap in another similarity strategy.
type PatternMatcher interface {
	Match(key string, patterns map[string]int, threshold float64) []PatternMatch
}

// JaccardMatcher implements PatternMatcher by comparing against every stored pattern.
type JaccardMatcher struct{}

// Match returns patterns whose similarity to key is strictly greater than
// threshold, sorted by similarity descending and then by key.
func (JaccardMatcher) Match(key string, patterns map[string]int, threshold float64) []PatternMatch {
	matches := []PatternMatch{}
	for _, p := range sortedKeys(patterns) {
		sim := PatternSimilarity(key, p)
		if sim <= threshold {
			continue
		}
		matches = append(matches, PatternMatch{Pattern: p, Count: patterns[p], Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
