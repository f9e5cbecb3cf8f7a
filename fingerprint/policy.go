package fingerprint

// DefaultThreshold is the maximum hamming distance still treated as a match.
// A single tunable constant balancing false positives against false
// negatives; it is not adaptive.
const DefaultThreshold = 14

// Policy converts a hamming distance into an accept/reject decision.
type Policy struct {
	Threshold int
}

// DefaultPolicy returns the policy with the stock threshold.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold}
}

// Match reports whether a distance qualifies. The boundary is inclusive:
// distance == Threshold matches, Threshold+1 does not.
func (p Policy) Match(distance int) bool {
	return distance <= p.Threshold
}
