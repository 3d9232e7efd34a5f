package repository

import (
	"strconv"
	"strings"

	"github.com/agroc/backend/internal/models"
)

// Aggregatable fields per entity, mapped to their SQL columns.
var (
	userAverageFields = map[string]string{"predictionCount": "prediction_count"}
	userGroupFields   = map[string]string{"role": "role"}

	predictionAverageFields = map[string]string{"confidence": "confidence"}
	predictionGroupFields   = map[string]string{
		"plantType":   "plant_type",
		"diseaseType": "disease_type",
		"prediction":  "prediction",
	}

	solutionAverageFields = map[string]string{"averageRating": "average_rating"}
	solutionGroupFields   = map[string]string{"plant": "plant", "disease": "disease"}

	commentAverageFields = map[string]string{"rating": "rating"}
	commentGroupFields   = map[string]string{"rating": "rating"}
)

// predictionGroupKeys turns a raw field value into a group key. A missing
// plant type groups as "unknown"; a missing disease is left out.
var predictionGroupKeys = map[string]func(*string) (string, bool){
	"plantType": func(v *string) (string, bool) {
		if v == nil || *v == "" {
			return "unknown", true
		}
		return *v, true
	},
	"diseaseType": func(v *string) (string, bool) {
		if v == nil || *v == "" {
			return "", false
		}
		return *v, true
	},
	"prediction": func(v *string) (string, bool) {
		if v == nil {
			return "", false
		}
		return *v, true
	},
}

func ratingKey(r int) string {
	return strconv.Itoa(r)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// New records always start active. Deactivation goes through an update.

func prepareUser(u *models.User) {
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.IsActive = true
}

func prepareSolution(s *models.Solution) {
	s.Plant = models.NormalizeKey(s.Plant)
	s.Disease = models.NormalizeKey(s.Disease)
	if !models.ValidSeverity(s.Severity) {
		s.Severity = models.SeverityMedium
	}
	if s.Symptoms == nil {
		s.Symptoms = []string{}
	}
	if s.Treatment == nil {
		s.Treatment = []string{}
	}
	if s.Prevention == nil {
		s.Prevention = []string{}
	}
	s.IsActive = true
}

func prepareComment(c *models.Comment) {
	if c.Likes == nil {
		c.Likes = []uint{}
	}
	if c.Dislikes == nil {
		c.Dislikes = []uint{}
	}
	c.IsActive = true
}

// populator resolves user references for find results.
type populator struct {
	users UserRepository
}

func (p populator) ref(id uint, withEmail bool) *models.UserRef {
	if id == 0 {
		return nil
	}
	u, err := p.users.FindByID(id)
	if err != nil || u == nil {
		return nil
	}
	return u.Ref(withEmail)
}

func (p populator) predictions(rows []models.Prediction) {
	for i := range rows {
		rows[i].User = p.ref(rows[i].UserID, true)
	}
}

func (p populator) solutions(rows []models.Solution) {
	for i := range rows {
		rows[i].CreatedBy = p.ref(rows[i].CreatedByID, false)
		rows[i].LastUpdatedBy = p.ref(rows[i].LastUpdatedByID, false)
	}
}

func (p populator) comments(rows []models.Comment) {
	for i := range rows {
		rows[i].User = p.ref(rows[i].UserID, false)
	}
}
