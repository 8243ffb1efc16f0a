// Package engagement maps facial-expression labels to classroom engagement
// levels and aggregates per-face results into session statistics.
package engagement

// Engagement levels derived from an emotion label.
const (
	LevelEngaged    = "engaged"
	LevelDisengaged = "disengaged"
	// LevelUnknown is the unscored sentinel for labels outside the closed
	// emotion domain (including classifier failures). Unscored faces count
	// toward the total but toward neither engagement bucket.
	LevelUnknown = "unknown"
)

// Canonical emotion labels produced by the expression model.
const (
	EmotionHappy    = "happy"
	EmotionSurprise = "surprise"
	EmotionNeutral  = "neutral"
	EmotionSad      = "sad"
	EmotionAngry    = "angry"
	EmotionFear     = "fear"
	EmotionDisgust  = "disgust"

	// EmotionError marks a face whose classification failed outright.
	EmotionError = "error"
	// EmotionUnknown marks a face the model returned no prediction for.
	EmotionUnknown = "unknown"
)

// CanonicalEmotions lists the seven labels of the closed emotion domain.
// Statistics distributions always carry all seven keys, even at zero.
var CanonicalEmotions = []string{
	EmotionHappy,
	EmotionSurprise,
	EmotionNeutral,
	EmotionSad,
	EmotionAngry,
	EmotionFear,
	EmotionDisgust,
}

var levelByEmotion = map[string]string{
	EmotionHappy:    LevelEngaged,
	EmotionSurprise: LevelEngaged,
	EmotionNeutral:  LevelEngaged,
	EmotionSad:      LevelDisengaged,
	EmotionAngry:    LevelDisengaged,
	EmotionFear:     LevelDisengaged,
	EmotionDisgust:  LevelDisengaged,
}

// MapEmotion returns the engagement level for an emotion label. It is total:
// any label outside the canonical seven maps to LevelUnknown.
func MapEmotion(emotion string) string {
	if level, ok := levelByEmotion[emotion]; ok {
		return level
	}
	return LevelUnknown
}
