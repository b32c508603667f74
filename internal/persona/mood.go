package persona

// Sentiment labels a dialogue turn's emotional charge. Providers are asked
// to pick one of these three.
const (
	SentimentWorried = "worried"
	SentimentTense   = "tense"
	SentimentUrgent  = "urgent"
)

func nextMoodIndex(cur, max int, sentiment string) int {
	next := cur
	switch sentiment {
	case SentimentUrgent:
		next += 2
	case SentimentTense:
		next++
	case SentimentWorried:
		// holds steady
	default:
		next--
	}
	if next < 0 {
		return 0
	}
	if next > max {
		return max
	}
	return next
}
