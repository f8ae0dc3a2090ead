package extract

// Source identifies the heuristic that produced an ExtractedSKU.
type Source int

const (
	SourceExactNumeric Source = iota
	SourceZeroPadded
	SourceZeroStripped
	SourceMultiSKU
	SourcePatternLetters
	SourcePatternLeading
	SourcePatternTrailing
	SourcePatternBare
	SourcePath
)

var sourceNames = [...]string{
	SourceExactNumeric:    "exact_numeric_filename",
	SourceZeroPadded:      "zero_padded_variant",
	SourceZeroStripped:    "zero_stripped_variant",
	SourceMultiSKU:        "multi_sku",
	SourcePatternLetters:  "pattern_digits_with_letters",
	SourcePatternLeading:  "pattern_leading_digits",
	SourcePatternTrailing: "pattern_trailing_digits",
	SourcePatternBare:     "pattern_digit_run",
	SourcePath:            "path_segment",
}

// String returns the stable name stored in match metadata.
func (s Source) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return "unknown"
	}
	return sourceNames[s]
}

// Sources lists every Source in declaration order.
func Sources() []Source {
	out := make([]Source, len(sourceNames))
	for i := range sourceNames {
		out[i] = Source(i)
	}
	return out
}

// ParseSource maps a stored name back to its Source.
func ParseSource(name string) (Source, bool) {
	for i, n := range sourceNames {
		if n == name {
			return Source(i), true
		}
	}
	return 0, false
}

// patternSources maps the enhanced pattern index to its Source.
var patternSources = [...]Source{SourcePatternLetters, SourcePatternLeading, SourcePatternTrailing, SourcePatternBare}
