package models

import "time"

const (
	OutcomeHealthy  = "healthy"
	OutcomeDiseased = "diseased"
)

type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageMetadata describes the stored image after processing.
type ImageMetadata struct {
	ImageSize ImageSize `gorm:"embedded;embeddedPrefix:image_" json:"imageSize"`
	FileSize  int64     `json:"fileSize"`
	MimeType  string    `gorm:"size:50" json:"mimeType"`
}

// Feedback is what a user reports back about a diagnosis.
type Feedback struct {
	IsCorrect    bool      `json:"isCorrect"`
	Feedback     string    `json:"feedback"`
	FeedbackDate time.Time `json:"feedbackDate"`
}

// Prediction is one diagnosis produced by the inference service.
type Prediction struct {
	Base
	UserID           uint          `gorm:"index;not null" json:"userId"`
	User             *UserRef      `gorm:"-" json:"user,omitempty"`
	ImageURL         string        `gorm:"size:500;not null" json:"imageUrl"`
	OriginalFileName string        `gorm:"size:255" json:"originalFileName"`
	Outcome          string        `gorm:"column:prediction;size:20;not null;index" json:"prediction"` // healthy, diseased
	Confidence       float64       `gorm:"not null" json:"confidence"`
	PlantType        string        `gorm:"size:100;index" json:"plantType"`
	DiseaseType      *string       `gorm:"size:100" json:"diseaseType"`
	ExplanationURL   *string       `gorm:"size:500" json:"explanationUrl"`
	ProcessingTime   int64         `json:"processingTime"` // milliseconds
	Metadata         ImageMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	UserFeedback     *Feedback     `gorm:"serializer:json;type:text" json:"userFeedback"`
}

func (Prediction) TableName() string { return "predictions" }

func (p *Prediction) Clone() Prediction {
	c := *p
	c.User = cloneRef(p.User)
	if p.DiseaseType != nil {
		d := *p.DiseaseType
		c.DiseaseType = &d
	}
	if p.ExplanationURL != nil {
		e := *p.ExplanationURL
		c.ExplanationURL = &e
	}
	if p.UserFeedback != nil {
		f := *p.UserFeedback
		c.UserFeedback = &f
	}
	return c
}

func (p *Prediction) IsDiseased() bool {
	return p.Outcome == OutcomeDiseased
}
