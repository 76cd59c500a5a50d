package worker

import (
	"sort"

	"github.com/ignite/adinsight/internal/domain"
)

// adTag is what a performance record learns from the content behind its ad.
type adTag struct {
	contentID    string
	insightID    *string
	experimentID *string
	variant      *domain.Variant
}

// adTags maps external ad ids to their content and experiment tags. It is
// built once per business per batch.
type adTags map[string]adTag

// buildAdTags joins published content against active experiments. Content
// that is the original or variant of an experiment tags its ad with that
// experiment and arm; when content sits in several experiments the earliest
// created one wins.
func buildAdTags(contents []domain.ContentRecord, experiments []domain.Experiment) adTags {
	exps := make([]domain.Experiment, len(experiments))
	copy(exps, experiments)
	sort.SliceStable(exps, func(i, j int) bool {
		if !exps[i].CreatedAt.Equal(exps[j].CreatedAt) {
			return exps[i].CreatedAt.Before(exps[j].CreatedAt)
		}
		return exps[i].ID < exps[j].ID
	})

	tags := make(adTags, len(contents))
	for _, c := range contents {
		if c.AdID == "" {
			continue
		}
		t := adTag{contentID: c.ID, insightID: c.GeneratedFromInsightID}
		for i := range exps {
			if v, ok := exps[i].VariantFor(c.ID); ok {
				id := exps[i].ID
				t.experimentID = &id
				t.variant = &v
				break
			}
		}
		tags[c.AdID] = t
	}
	return tags
}

// apply copies the ad's tags onto rec. Untagged ads are left as they are.
func (t adTags) apply(rec *domain.PerformanceRecord) {
	tag, ok := t[rec.AdID]
	if !ok {
		return
	}
	if tag.contentID != "" {
		id := tag.contentID
		rec.ContentID = &id
	}
	rec.GeneratedFromInsightID = tag.insightID
	rec.ExperimentID = tag.experimentID
	rec.Variant = tag.variant
}
