package domain

import (
	"strings"
)

// Content element types produced by the content generator.
const (
	ElementHeadline    = "headline"
	ElementPhrase      = "phrase"
	ElementVisualMotif = "visual_motif"
)

// ContentElement is a single reusable piece of ad creative.
type ContentElement struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Key returns the element key in "type:value" form. Values are compared
// case-insensitively with surrounding whitespace removed.
func (e ContentElement) Key() string {
	return strings.ToLower(strings.TrimSpace(e.Type)) + ":" + strings.ToLower(strings.TrimSpace(e.Value))
}

// ContentRecord is a piece of generated content that has been published as
// an ad on an external platform.
type ContentRecord struct {
	ID                     string           `json:"id" db:"id"`
	BusinessID             string           `json:"business_id" db:"business_id"`
	AdID                   string           `json:"ad_id" db:"ad_id"` // metadata.adId
	Headline               string           `json:"headline" db:"headline"`
	Elements               []ContentElement `json:"elements" db:"elements"`
	GeneratedFromInsightID *string          `json:"generated_from_insight_id,omitempty" db:"generated_from_insight_id"`
}

// AllElements returns the explicit elements plus the headline itself.
func (c ContentRecord) AllElements() []ContentElement {
	out := make([]ContentElement, 0, len(c.Elements)+1)
	if strings.TrimSpace(c.Headline) != "" {
		out = append(out, ContentElement{Type: ElementHeadline, Value: c.Headline})
	}
	return append(out, c.Elements...)
}
