package classifier

// Unknown is reported instead of a label when no classification capability
// is loaded. It is never a member of Labels.
const Unknown = "Unknown (model not loaded)"

// labels is index-aligned with the probability vector of every capability.
var labels = [...]string{
	"BA-cellulitis",
	"BA-impetigo",
	"FU-athlete-foot",
	"FU-nail-fungus",
	"FU-ringworm",
	"PA-cutaneous-larva-migrans",
	"VI-chickenpox",
	"VI-shingles",
}

// NumLabels is the length of every probability vector.
const NumLabels = len(labels)

// Labels returns the fixed label set in model output order.
func Labels() []string {
	out := make([]string, NumLabels)
	copy(out, labels[:])
	return out
}

// IsLabel reports whether s belongs to the fixed label set.
func IsLabel(s string) bool {
	for _, l := range labels {
		if l == s {
			return true
		}
	}
	return false
}
