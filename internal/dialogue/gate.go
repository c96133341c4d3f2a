package dialogue

// Gate downgrades borderline recognition results. A nil floor accepts
// everything; otherwise results below the floor are rejected.
type Gate struct {
	Floor *float64
}

func (g Gate) Accept(confidence float64) bool {
	if g.Floor == nil {
		return true
	}
	return confidence >= *g.Floor
}
