package batch

import (
	"github.com/corona10/goimagehash"

	"github.com/lepinkainen/visiontagger/archive"
)

// hashIndex lazily computes perception hashes for processed rows so that
// later rows can be compared against earlier ones
type hashIndex struct {
	hashes []*goimagehash.ImageHash
}

func newHashIndex(n int) *hashIndex {
	return &hashIndex{hashes: make([]*goimagehash.ImageHash, n)}
}

// duplicateOf hashes asset i and compares it against every earlier
// hashed asset. Returns the name of the first earlier asset within
// threshold, or ok=false when the image is novel or unhashable.
func (h *hashIndex) duplicateOf(i int, asset archive.ImageAsset, assets []archive.ImageAsset, threshold int) (string, bool) {
	hash, err := goimagehash.PerceptionHash(asset.Image)
	if err != nil {
		return "", false
	}
	h.hashes[i] = hash

	for j := 0; j < i; j++ {
		if h.hashes[j] == nil {
			continue
		}
		distance, err := hash.Distance(h.hashes[j])
		if err != nil {
			continue
		}
		if distance <= threshold {
			return assets[j].Name, true
		}
	}
	return "", false
}
