package pattern

import (
	"sort"

	"github.com/ignite/adinsight/internal/domain"
)

// ElementIndex maps element keys to the ads carrying that element. It is
// rebuilt from content records on every run and never persisted.
type ElementIndex struct {
	ads      map[string]map[string]struct{}
	elements map[string]domain.ContentElement
}

// BuildElementIndex indexes every element (headline included) of content
// records that reference an ad. Records without an ad id are ignored.
func BuildElementIndex(records []domain.ContentRecord) *ElementIndex {
	ix := &ElementIndex{
		ads:      make(map[string]map[string]struct{}),
		elements: make(map[string]domain.ContentElement),
	}
	for _, rec := range records {
		if rec.AdID == "" {
			continue
		}
		for _, el := range rec.AllElements() {
			key := el.Key()
			set, ok := ix.ads[key]
			if !ok {
				set = make(map[string]struct{})
				ix.ads[key] = set
				ix.elements[key] = el
			}
			set[rec.AdID] = struct{}{}
		}
	}
	return ix
}

// Len returns the number of distinct element keys.
func (ix *ElementIndex) Len() int { return len(ix.ads) }

// Keys returns the element keys in sorted order.
func (ix *ElementIndex) Keys() []string {
	keys := make([]string, 0, len(ix.ads))
	for k := range ix.ads {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ads returns the set of ad ids carrying the element. The set must not be
// modified.
func (ix *ElementIndex) Ads(key string) map[string]struct{} {
	return ix.ads[key]
}

// Has reports whether adID carries the element.
func (ix *ElementIndex) Has(key, adID string) bool {
	_, ok := ix.ads[key][adID]
	return ok
}

// Element returns the element as first seen, with its original casing.
func (ix *ElementIndex) Element(key string) (domain.ContentElement, bool) {
	el, ok := ix.elements[key]
	return el, ok
}
