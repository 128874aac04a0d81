package retrieval

// Confidence summarizes how well-grounded a final chunk set is: the mean of
// each chunk's best available score, clamped to [0,1]. An empty set scores 0.
func Confidence(chunks []Chunk) float32 {
	if len(chunks) == 0 {
		return 0
	}

	var sum float32
	for _, c := range chunks {
		sum += c.BestScore()
	}
	return clamp01(sum / float32(len(chunks)))
}
