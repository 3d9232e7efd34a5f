package models

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Solution is the treatment record for one plant and disease pair.
// AverageRating and TotalRatings are derived from the ratings held by the
// solution's comments.
type Solution struct {
	Base
	Plant                string   `gorm:"size:100;not null;uniqueIndex:idx_solution_plant_disease" json:"plant"`
	Disease              string   `gorm:"size:100;not null;uniqueIndex:idx_solution_plant_disease" json:"disease"`
	Title                string   `gorm:"size:200" json:"title,omitempty"`
	Description          string   `gorm:"type:text;not null" json:"description"`
	Severity             string   `gorm:"size:20" json:"severity"`
	Symptoms             []string `gorm:"serializer:json;type:text" json:"symptoms"`
	Treatment            []string `gorm:"serializer:json;type:text" json:"treatment"`
	Prevention           []string `gorm:"serializer:json;type:text" json:"prevention"`
	AffectedParts        []string `gorm:"serializer:json;type:text" json:"affectedParts,omitempty"`
	Seasonality          []string `gorm:"serializer:json;type:text" json:"seasonality,omitempty"`
	EnvironmentalFactors []string `gorm:"serializer:json;type:text" json:"environmentalFactors,omitempty"`
	OrganicTreatment     []string `gorm:"serializer:json;type:text" json:"organicTreatment,omitempty"`
	ChemicalTreatment    []string `gorm:"serializer:json;type:text" json:"chemicalTreatment,omitempty"`
	AverageRating        float64  `gorm:"not null;index" json:"averageRating"`
	TotalRatings         int      `gorm:"not null" json:"totalRatings"`
	IsActive             bool     `gorm:"not null;index" json:"isActive"`
	CreatedByID          uint     `json:"createdById,omitempty"`
	CreatedBy            *UserRef `gorm:"-" json:"createdBy,omitempty"`
	LastUpdatedByID      uint     `json:"lastUpdatedById,omitempty"`
	LastUpdatedBy        *UserRef `gorm:"-" json:"lastUpdatedBy,omitempty"`
}

func (Solution) TableName() string { return "solutions" }

func (s *Solution) Clone() Solution {
	c := *s
	c.Symptoms = cloneStrings(s.Symptoms)
	c.Treatment = cloneStrings(s.Treatment)
	c.Prevention = cloneStrings(s.Prevention)
	c.AffectedParts = cloneStrings(s.AffectedParts)
	c.Seasonality = cloneStrings(s.Seasonality)
	c.EnvironmentalFactors = cloneStrings(s.EnvironmentalFactors)
	c.OrganicTreatment = cloneStrings(s.OrganicTreatment)
	c.ChemicalTreatment = cloneStrings(s.ChemicalTreatment)
	c.CreatedBy = cloneRef(s.CreatedBy)
	c.LastUpdatedBy = cloneRef(s.LastUpdatedBy)
	return c
}

// AddRating folds a new rating into the running average.
func (s *Solution) AddRating(rating int) {
	sum := s.AverageRating * float64(s.TotalRatings)
	s.TotalRatings++
	s.AverageRating = (sum + float64(rating)) / float64(s.TotalRatings)
}

// ChangeRating swaps a previously counted rating for a new one. The count
// does not move.
func (s *Solution) ChangeRating(old, rating int) {
	if s.TotalRatings == 0 {
		s.AddRating(rating)
		return
	}
	sum := s.AverageRating*float64(s.TotalRatings) - float64(old) + float64(rating)
	s.AverageRating = sum / float64(s.TotalRatings)
}

// ValidSeverity reports whether v is one of the known severity levels.
func ValidSeverity(v string) bool {
	switch v {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}
