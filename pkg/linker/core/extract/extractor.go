// Package extract infers candidate SKUs from image filenames.
//
// Extraction is layered: an all-digit filename is a near certain signal, composite names
// carry several SKUs, and looser digit patterns or path segments produce weaker guesses.
// Each guess carries a confidence score so callers can decide between auto-linking and
// flagging for review.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minSKULen = 3
	maxSKULen = 8

	confidenceExact   = 100
	confidenceVariant = 95
	confidenceMulti   = 90
	multiStep         = 3
	multiFloor        = 70
	patternBase       = 60
	patternStep       = 10
	patternFloor      = 30
	confidenceWhole   = 90
	confidencePrefix  = 80
	confidenceLetters = 75
	confidenceSuffix  = 70
	confidencePath    = 60
)

// ExtractedSKU is one candidate SKU inferred from a filename.
type ExtractedSKU struct {
	SKU        string
	Confidence int
	Source     Source
}

var (
	extPattern     = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|bmp|svg)$`)
	numericPattern = regexp.MustCompile(`^\d{3,8}$`)
	// Two or more 3-8 digit runs joined by '.', '-' or '_', then an optional non-numeric suffix.
	multiPattern = regexp.MustCompile(`^(\d{3,8}(?:[._-]\d{3,8})+)(?:[._-]?[^\d._-][^\d]*)?$`)
	runSplitter  = regexp.MustCompile(`[._-]`)
	digitRun     = regexp.MustCompile(`\d+`)
)

// Clean strips a trailing image extension and any stray trailing dots.
func Clean(filename string) string {
	name := extPattern.ReplaceAllString(strings.TrimSpace(filename), "")
	return strings.TrimRight(name, ".")
}

// Extract returns the candidate SKUs for filename, highest confidence first.
// path is the object's directory part and may be empty. Extract never fails; a name
// without a usable digit run yields an empty result.
func Extract(filename, path string) []ExtractedSKU {
	name := Clean(filename)
	var found []ExtractedSKU
	seen := map[string]bool{}
	add := func(sku string, confidence int, src Source) {
		if seen[sku] {
			return
		}
		seen[sku] = true
		found = append(found, ExtractedSKU{SKU: sku, Confidence: confidence, Source: src})
	}

	if numericPattern.MatchString(name) {
		add(name, confidenceExact, SourceExactNumeric)
		if len(name) == 5 && name[0] != '0' {
			add("0"+name, confidenceVariant, SourceZeroPadded)
		}
		if name[0] == '0' && len(name) > minSKULen {
			if stripped := strings.TrimLeft(name, "0"); stripped != "" {
				add(stripped, confidenceVariant, SourceZeroStripped)
			}
		}
		return sortByConfidence(found)
	}

	if m := multiPattern.FindStringSubmatch(name); m != nil {
		for i, run := range uniqueRuns(runSplitter.Split(m[1], -1)) {
			add(run, max(multiFloor, confidenceMulti-multiStep*i), SourceMultiSKU)
		}
	}

	if len(found) == 0 || strings.Contains(name, ".") {
		for _, c := range patternCandidates(name) {
			add(c.SKU, c.Confidence, c.Source)
		}
	}

	if len(found) == 0 && path != "" {
		for _, seg := range strings.Split(path, "/") {
			if len(seg) >= minSKULen && isDigits(seg) {
				add(seg, confidencePath, SourcePath)
			}
		}
	}

	return sortByConfidence(found)
}

// patternCandidates applies the four enhanced patterns in order: a digit run touching a
// letter, leading digits, trailing digits and any digit run. Only maximal runs of 3-8
// digits are considered, so a 9 digit run never yields a sliced SKU.
func patternCandidates(name string) []ExtractedSKU {
	type run struct {
		start, end int
		digits     string
	}
	var runs []run
	for _, loc := range digitRun.FindAllStringIndex(name, -1) {
		if n := loc[1] - loc[0]; n >= minSKULen && n <= maxSKULen {
			runs = append(runs, run{start: loc[0], end: loc[1], digits: name[loc[0]:loc[1]]})
		}
	}

	matchers := [len(patternSources)]func(r run) bool{
		func(r run) bool { return letterBefore(name, r.start) || letterAfter(name, r.end) },
		func(r run) bool { return r.start == 0 },
		func(r run) bool { return r.end == len(name) },
		func(r run) bool { return true },
	}

	var out []ExtractedSKU
	for idx, matches := range matchers {
		for _, r := range runs {
			if !matches(r) {
				continue
			}
			out = append(out, ExtractedSKU{
				SKU:        r.digits,
				Confidence: patternConfidence(name, r.digits, idx),
				Source:     patternSources[idx],
			})
		}
	}
	return out
}

func patternConfidence(name, digits string, idx int) int {
	confidence := patternBase - patternStep*idx
	switch {
	case digits == name:
		confidence = confidenceWhole
	case strings.HasPrefix(name, digits):
		confidence = confidencePrefix
	case idx == 0:
		confidence = confidenceLetters
	case strings.HasSuffix(name, digits):
		confidence = confidenceSuffix
	}
	return max(confidence, patternFloor)
}

// letterBefore and letterAfter decode the whole rune next to byte offset i.
func letterBefore(s string, i int) bool {
	r, size := utf8.DecodeLastRuneInString(s[:i])
	return size > 0 && unicode.IsLetter(r)
}

func letterAfter(s string, i int) bool {
	r, size := utf8.DecodeRuneInString(s[i:])
	return size > 0 && unicode.IsLetter(r)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func uniqueRuns(runs []string) []string {
	seen := make(map[string]bool, len(runs))
	out := runs[:0:0]
	for _, r := range runs {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// sortByConfidence orders by descending confidence, keeping discovery order among ties.
func sortByConfidence(skus []ExtractedSKU) []ExtractedSKU {
	sort.SliceStable(skus, func(i, j int) bool { return skus[i].Confidence > skus[j].Confidence })
	if skus == nil {
		return []ExtractedSKU{}
	}
	return skus
}
