// Package match pairs storage images with catalog products through the SKUs
// extracted from image filenames.
package match

import (
	"strings"

	"github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/core/extract"
)

// Result is the best product match for one image.
type Result struct {
	Image      model.StorageObject
	Product    model.Product
	Confidence int
	Source     extract.Source
	// SKU is the extracted value that matched, before normalization.
	SKU string
	// AlternateSKUs are the other extracted SKUs, kept for logging only.
	AlternateSKUs []string
}

// Extractor turns a filename and its directory into ranked SKU candidates.
type Extractor func(filename, path string) []extract.ExtractedSKU

// Matcher resolves images against an index of product SKUs.
type Matcher struct {
	extract Extractor
}

// NewMatcher returns a Matcher using extract.Extract.
func NewMatcher() *Matcher {
	return &Matcher{extract: extract.Extract}
}

// NewMatcherWithExtractor returns a Matcher using a custom extractor.
func NewMatcherWithExtractor(fn Extractor) *Matcher {
	return &Matcher{extract: fn}
}

// NormalizeSKU lower-cases sku and strips leading zeros. An all-zero SKU becomes "0".
func NormalizeSKU(sku string) string {
	s := strings.ToLower(strings.TrimSpace(sku))
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

// Index maps normalized SKUs to products. When two products normalize to the same SKU the
// first one wins.
type Index map[string]model.Product

// BuildIndex indexes products by normalized SKU, ignoring products without one.
func BuildIndex(products []model.Product) Index {
	idx := make(Index, len(products))
	for _, p := range products {
		key := NormalizeSKU(p.SKUValue())
		if key == "" {
			continue
		}
		if _, dup := idx[key]; !dup {
			idx[key] = p
		}
	}
	return idx
}

// MatchOne returns the best match for image. Extracted SKUs are tried from the highest
// confidence down and the first hit wins; ok is false when nothing matched.
func (m *Matcher) MatchOne(image model.StorageObject, idx Index) (Result, bool) {
	candidates := m.extract(image.BaseName(), image.Dir())
	for i, c := range candidates {
		p, hit := idx[NormalizeSKU(c.SKU)]
		if !hit {
			continue
		}
		res := Result{Image: image, Product: p, Confidence: c.Confidence, Source: c.Source, SKU: c.SKU}
		for j, other := range candidates {
			if j != i {
				res.AlternateSKUs = append(res.AlternateSKUs, other.SKU)
			}
		}
		return res, true
	}
	return Result{}, false
}

// Match runs MatchOne over images and returns the matches in image order.
// Images without a match are dropped.
func (m *Matcher) Match(images []model.StorageObject, products []model.Product) []Result {
	return m.MatchIndexed(images, BuildIndex(products), nil)
}

// MatchIndexed is Match over a prebuilt index. onItem, if set, is called after each image
// with the number of images processed so far.
func (m *Matcher) MatchIndexed(images []model.StorageObject, idx Index, onItem func(done int)) []Result {
	var results []Result
	for i, img := range images {
		if r, ok := m.MatchOne(img, idx); ok {
			results = append(results, r)
		}
		if onItem != nil {
			onItem(i + 1)
		}
	}
	return results
}
