package experiment_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
	"github.com/ignite/adinsight/internal/stats"
)

func TestBucket_Stable(t *testing.T) {
	assert.Equal(t, 78, experiment.Bucket("user-42", "exp-1"))
	assert.Equal(t, 21, experiment.Bucket("user-42", "exp-2"))
	assert.Equal(t, 61, experiment.Bucket("user-7", "exp-1"))
}

func TestAssign_Deterministic(t *testing.T) {
	exp := domain.Experiment{ID: "exp-1", Split: domain.Split{Original: 50, Variant: 50}}
	first := experiment.Assign("user-42", exp)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, experiment.Assign("user-42", exp))
	}
	// bucket 78 >= 50
	assert.Equal(t, domain.VariantVariant, first)
}

func TestAssign_SplitBoundaries(t *testing.T) {
	all := domain.Experiment{ID: "exp-1", Split: domain.Split{Original: 100, Variant: 0}}
	none := domain.Experiment{ID: "exp-1", Split: domain.Split{Original: 0, Variant: 100}}
	for i := 0; i < 500; i++ {
		subject := fmt.Sprintf("s-%d", i)
		assert.Equal(t, domain.VariantOriginal, experiment.Assign(subject, all))
		assert.Equal(t, domain.VariantVariant, experiment.Assign(subject, none))
	}
}

func TestAssign_UniformAcrossSubjects(t *testing.T) {
	exp := domain.Experiment{ID: "exp-uniform", Split: domain.Split{Original: 50, Variant: 50}}

	buckets := make([]int64, 100)
	arms := make([]int64, 2)
	for i := 0; i < 10000; i++ {
		subject := fmt.Sprintf("subject-%d", i)
		buckets[experiment.Bucket(subject, exp.ID)]++
		if experiment.Assign(subject, exp) == domain.VariantOriginal {
			arms[0]++
		} else {
			arms[1]++
		}
	}

	_, p := stats.GoodnessOfFit(buckets)
	assert.Greater(t, p, 0.01, "bucket distribution rejected as uniform")

	_, p = stats.GoodnessOfFit(arms)
	assert.Greater(t, p, 0.01, "arm counts %v", arms)
}
