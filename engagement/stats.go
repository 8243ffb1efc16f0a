package engagement

import "github.com/classlens/backend/models"

// ComputeStatistics aggregates a session's face results. The distribution
// always contains the seven canonical emotion keys; error/unknown labels are
// added under their own key when present. Unscored faces stay in the
// percentage denominator, so engaged + disengaged + unknown == total.
func ComputeStatistics(faces []models.FaceResult) models.Statistics {
	stats := models.Statistics{
		EmotionDistribution: make(map[string]int, len(CanonicalEmotions)),
	}
	for _, emotion := range CanonicalEmotions {
		stats.EmotionDistribution[emotion] = 0
	}

	stats.TotalFaces = len(faces)
	for _, face := range faces {
		switch face.EngagementLevel {
		case LevelEngaged:
			stats.EngagedCount++
		case LevelDisengaged:
			stats.DisengagedCount++
		default:
			stats.UnknownCount++
		}
		stats.EmotionDistribution[face.Emotion]++
	}

	if stats.TotalFaces > 0 {
		stats.EngagementPercentage = float64(stats.EngagedCount) / float64(stats.TotalFaces) * 100
	}

	return stats
}
