package models

// Session status values. Transitions only go forward:
// processing -> completed or processing -> failed.
const (
	SessionStatusProcessing = "processing"
	SessionStatusCompleted  = "completed"
	SessionStatusFailed     = "failed"
)

const DefaultClassName = "Unknown Class"

// Session represents one analyzed classroom upload.
// It corresponds to the 'sessions' table.
type Session struct {
	ID        string `gorm:"primaryKey" json:"id"`
	ClassName string `gorm:"not null" json:"class_name"`
	ImageName string `gorm:"not null" json:"image_name"` // sanitized client filename
	Status    string `gorm:"not null;default:processing;index" json:"status"`

	UploadedAt  int64   `gorm:"not null;index" json:"uploaded_at"` // Unix timestamp
	CompletedAt *int64  `gorm:"" json:"completed_at,omitempty"`    // Nullable, Unix timestamp
	ErrorMsg    *string `gorm:"" json:"error,omitempty"`           // Nullable, set for failed sessions

	OriginalImage  string  `gorm:"not null" json:"original_image"` // stored filename
	AnnotatedImage *string `gorm:"" json:"annotated_image,omitempty"`
	ThumbnailImage *string `gorm:"" json:"thumbnail_image,omitempty"`

	// capture metadata extracted from EXIF, best effort
	Width       *int    `gorm:"" json:"width,omitempty"`
	Height      *int    `gorm:"" json:"height,omitempty"`
	TakenAt     *int64  `gorm:"" json:"taken_at,omitempty"`
	CameraMake  *string `gorm:"" json:"camera_make,omitempty"`
	CameraModel *string `gorm:"" json:"camera_model,omitempty"`

	Statistics Statistics `gorm:"embedded" json:"statistics"`

	Faces []FaceResult `gorm:"foreignKey:SessionID;references:ID" json:"faces,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Session) TableName() string {
	return "sessions"
}

// Statistics aggregates a session's face results. It is embedded in the
// sessions table and computed exactly once, at session finalization.
type Statistics struct {
	TotalFaces           int            `gorm:"not null;default:0" json:"total_faces"`
	EngagedCount         int            `gorm:"not null;default:0" json:"engaged_count"`
	DisengagedCount      int            `gorm:"not null;default:0" json:"disengaged_count"`
	UnknownCount         int            `gorm:"not null;default:0" json:"unknown_count"`
	EngagementPercentage float64        `gorm:"not null;default:0" json:"engagement_percentage"`
	EmotionDistribution  map[string]int `gorm:"serializer:json" json:"emotion_distribution"`
}
