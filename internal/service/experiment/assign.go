package experiment

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ignite/adinsight/internal/domain"
)

// Bucket maps a subject to a stable bucket in [0, 99] for an experiment.
// The bucket is the first eight bytes of SHA-256("subjectID:experimentID")
// read big-endian, modulo 100.
func Bucket(subjectID, experimentID string) int {
	sum := sha256.Sum256([]byte(subjectID + ":" + experimentID))
	return int(binary.BigEndian.Uint64(sum[:8]) % 100)
}

// Assign returns the arm a subject sees. Buckets below Split.Original get
// the original content.
func Assign(subjectID string, exp domain.Experiment) domain.Variant {
	if Bucket(subjectID, exp.ID) < exp.Split.Original {
		return domain.VariantOriginal
	}
	return domain.VariantVariant
}
