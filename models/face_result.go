package models

import "encoding/json"

// FaceResult represents one detected face within a session's image.
// It corresponds to the 'face_results' table. Rows are immutable after the
// session is finalized; FaceIndex preserves detection order.
type FaceResult struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"not null;index"`
	FaceIndex int    `gorm:"not null"`

	// bounding box in pixel coordinates, clamped to image bounds
	X int `gorm:"not null"`
	Y int `gorm:"not null"`
	W int `gorm:"not null"`
	H int `gorm:"not null"`

	DetectionConfidence float64 `gorm:"not null"`
	Emotion             string  `gorm:"not null"`
	EmotionScore        float64 `gorm:"not null"`
	EngagementLevel     string  `gorm:"not null"`
}

// TableName explicitly sets the table name for GORM.
func (FaceResult) TableName() string {
	return "face_results"
}

// MarshalJSON emits the wire shape used by the API: the bounding box is an
// [x, y, w, h] array rather than four separate fields.
func (f FaceResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		FaceIndex           int     `json:"face_index"`
		BBox                [4]int  `json:"bbox"`
		DetectionConfidence float64 `json:"detection_confidence"`
		Emotion             string  `json:"emotion"`
		EmotionScore        float64 `json:"emotion_score"`
		EngagementLevel     string  `json:"engagement_level"`
	}{
		FaceIndex:           f.FaceIndex,
		BBox:                [4]int{f.X, f.Y, f.W, f.H},
		DetectionConfidence: f.DetectionConfidence,
		Emotion:             f.Emotion,
		EmotionScore:        f.EmotionScore,
		EngagementLevel:     f.EngagementLevel,
	})
}
