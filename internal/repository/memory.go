package repository

import (
	"sort"
	"strings"
	"time"

	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/store"
)

// NewMemory builds repositories over an in-process document store. Records of
// every entity draw ids from the store's shared sequence.
func NewMemory(st *store.Store) *Repositories {
	users := &memoryUserRepo{table: store.NewTable[models.User](st, "users")}
	pop := populator{users: users}

	return &Repositories{
		Backend:     BackendMemory,
		Users:       users,
		Predictions: &memoryPredictionRepo{table: store.NewTable[models.Prediction](st, "predictions"), populate: pop},
		Solutions:   &memorySolutionRepo{table: store.NewTable[models.Solution](st, "solutions"), populate: pop},
		Comments:    &memoryCommentRepo{table: store.NewTable[models.Comment](st, "comments"), populate: pop},
	}
}

type timestamped interface {
	DocumentID() uint
	CreatedTime() time.Time
}

// newestFirst orders rows by createdAt descending, then id descending.
func newestFirst[T any, P interface {
	*T
	timestamped
}](rows []T) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := P(&rows[i]), P(&rows[j])
		if !a.CreatedTime().Equal(b.CreatedTime()) {
			return a.CreatedTime().After(b.CreatedTime())
		}
		return a.DocumentID() > b.DocumentID()
	})
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (q UserQuery) matches(u *models.User) bool {
	if q.ID != 0 && u.ID != q.ID {
		return false
	}
	if q.Email != "" && u.Email != normalizeEmail(q.Email) {
		return false
	}
	if q.ExcludeID != 0 && u.ID == q.ExcludeID {
		return false
	}
	if q.Role != "" && u.Role != q.Role {
		return false
	}
	if q.ActiveOnly && !u.IsActive {
		return false
	}
	if q.Search != "" && !containsFold(u.Name, q.Search) && !containsFold(u.Email, q.Search) {
		return false
	}
	return true
}

func (q PredictionQuery) matches(p *models.Prediction) bool {
	if q.ID != 0 && p.ID != q.ID {
		return false
	}
	if q.UserID != 0 && p.UserID != q.UserID {
		return false
	}
	if q.Outcome != "" && p.Outcome != q.Outcome {
		return false
	}
	if q.HasDisease && (p.DiseaseType == nil || *p.DiseaseType == "") {
		return false
	}
	return true
}

func (q SolutionQuery) matches(s *models.Solution) bool {
	if q.ID != 0 && s.ID != q.ID {
		return false
	}
	if q.Plant != "" && s.Plant != models.NormalizeKey(q.Plant) {
		return false
	}
	if q.Disease != "" && s.Disease != models.NormalizeKey(q.Disease) {
		return false
	}
	if q.PlantContains != "" && !containsFold(s.Plant, strings.TrimSpace(q.PlantContains)) {
		return false
	}
	if q.DiseaseContains != "" && !containsFold(s.Disease, strings.TrimSpace(q.DiseaseContains)) {
		return false
	}
	if q.ActiveOnly && !s.IsActive {
		return false
	}
	return true
}

func (q CommentQuery) matches(c *models.Comment) bool {
	if q.ID != 0 && c.ID != q.ID {
		return false
	}
	if q.SolutionID != 0 && c.SolutionID != q.SolutionID {
		return false
	}
	if q.UserID != 0 && c.UserID != q.UserID {
		return false
	}
	if q.ActiveOnly && !c.IsActive {
		return false
	}
	if q.ContentNot != nil && c.Content == *q.ContentNot {
		return false
	}
	if q.RatingExists && c.Rating == nil {
		return false
	}
	return true
}

func conflictErr(err error) error {
	if err == store.ErrConflict {
		return ErrDuplicate
	}
	return err
}

// --- users ---

type memoryUserRepo struct {
	table *store.Table[models.User, *models.User]
}

func sameEmail(candidate, existing *models.User) bool {
	return candidate.Email == existing.Email
}

func (r *memoryUserRepo) Create(user *models.User) error {
	prepareUser(user)
	created, err := r.table.InsertUnique(*user, func(existing *models.User) bool {
		return sameEmail(user, existing)
	})
	if err != nil {
		return conflictErr(err)
	}
	*user = created
	return nil
}

func (r *memoryUserRepo) FindOne(q UserQuery) (*models.User, error) {
	u, ok := r.table.First(q.matches)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memoryUserRepo) Find(q UserQuery, opts FindOptions) ([]models.User, error) {
	rows := r.table.Find(q.matches)
	newestFirst(rows)
	return store.Paginate(rows, opts.Skip, opts.limit()), nil
}

func (r *memoryUserRepo) FindByID(id uint) (*models.User, error) {
	u, ok := r.table.Get(id)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memoryUserRepo) FindByIDAndUpdate(id uint, update UserUpdate) (*models.User, error) {
	u, found, err := r.table.UpdateUnique(id, update.apply, sameEmail)
	if err != nil {
		return nil, conflictErr(err)
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (r *memoryUserRepo) Count(q UserQuery) (int64, error) {
	return int64(r.table.Count(q.matches)), nil
}

func (r *memoryUserRepo) Aggregate(p Pipeline[UserQuery]) ([]AggregateRow, error) {
	if _, err := p.resolve(userAverageFields, userGroupFields); err != nil {
		return nil, err
	}
	if p.Kind == AggregateAverage {
		avg, n := r.table.Average(p.Match.matches, func(u *models.User) (float64, bool) {
			return float64(u.PredictionCount), true
		})
		return []AggregateRow{{Count: int64(n), Avg: avg}}, nil
	}
	groups := r.table.GroupCount(p.Match.matches, func(u *models.User) (string, bool) {
		return u.Role, true
	})
	return groupRows(groups, p.SortDesc, p.Limit), nil
}

func (r *memoryUserRepo) Save(user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	saved, found, err := r.table.ReplaceUnique(user.ID, *user, func(existing *models.User) bool {
		return sameEmail(user, existing)
	})
	if err != nil {
		return conflictErr(err)
	}
	if found {
		*user = saved
	}
	return nil
}

func (r *memoryUserRepo) Delete(id uint) (*models.User, error) {
	u, ok := r.table.Delete(id)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// --- predictions ---

type memoryPredictionRepo struct {
	table    *store.Table[models.Prediction, *models.Prediction]
	populate populator
}

func (r *memoryPredictionRepo) Create(prediction *models.Prediction) error {
	*prediction = r.table.Insert(*prediction)
	return nil
}

func (r *memoryPredictionRepo) FindOne(q PredictionQuery) (*models.Prediction, error) {
	p, ok := r.table.First(q.matches)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryPredictionRepo) Find(q PredictionQuery, opts FindOptions) ([]models.Prediction, error) {
	rows := r.table.Find(q.matches)
	newestFirst(rows)
	rows = store.Paginate(rows, opts.Skip, opts.limit())
	if opts.Populate {
		r.populate.predictions(rows)
	}
	return rows, nil
}

func (r *memoryPredictionRepo) FindByID(id uint) (*models.Prediction, error) {
	p, ok := r.table.Get(id)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryPredictionRepo) FindByIDAndUpdate(id uint, update PredictionUpdate) (*models.Prediction, error) {
	p, ok := r.table.Update(id, update.apply)
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *memoryPredictionRepo) Count(q PredictionQuery) (int64, error) {
	return int64(r.table.Count(q.matches)), nil
}

func (r *memoryPredictionRepo) Aggregate(p Pipeline[PredictionQuery]) ([]AggregateRow, error) {
	if _, err := p.resolve(predictionAverageFields, predictionGroupFields); err != nil {
		return nil, err
	}
	if p.Kind == AggregateAverage {
		avg, n := r.table.Average(p.Match.matches, func(pr *models.Prediction) (float64, bool) {
			return pr.Confidence, true
		})
		return []AggregateRow{{Count: int64(n), Avg: avg}}, nil
	}
	keyOf := predictionGroupKeys[p.Field]
	groups := r.table.GroupCount(p.Match.matches, func(pr *models.Prediction) (string, bool) {
		return keyOf(predictionFieldValue(pr, p.Field))
	})
	return groupRows(groups, p.SortDesc, p.Limit), nil
}

func predictionFieldValue(p *models.Prediction, field string) *string {
	switch field {
	case "plantType":
		return &p.PlantType
	case "diseaseType":
		return p.DiseaseType
	default:
		return &p.Outcome
	}
}

func (r *memoryPredictionRepo) Save(prediction *models.Prediction) error {
	if saved, ok := r.table.Replace(prediction.ID, *prediction); ok {
		*prediction = saved
	}
	return nil
}

// --- solutions ---

type memorySolutionRepo struct {
	table    *store.Table[models.Solution, *models.Solution]
	populate populator
}

func samePair(candidate, existing *models.Solution) bool {
	return candidate.Plant == existing.Plant && candidate.Disease == existing.Disease
}

// bestRatedFirst orders by averageRating, then totalRatings, both
// descending, then id ascending.
func bestRatedFirst(rows []models.Solution) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		if a.AverageRating != b.AverageRating {
			return a.AverageRating > b.AverageRating
		}
		if a.TotalRatings != b.TotalRatings {
			return a.TotalRatings > b.TotalRatings
		}
		return a.ID < b.ID
	})
}

func (r *memorySolutionRepo) Create(solution *models.Solution) error {
	prepareSolution(solution)
	created, err := r.table.InsertUnique(*solution, func(existing *models.Solution) bool {
		return samePair(solution, existing)
	})
	if err != nil {
		return conflictErr(err)
	}
	*solution = created
	return nil
}

func (r *memorySolutionRepo) FindOne(q SolutionQuery) (*models.Solution, error) {
	s, ok := r.table.First(q.matches)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memorySolutionRepo) Find(q SolutionQuery, opts FindOptions) ([]models.Solution, error) {
	rows := r.table.Find(q.matches)
	bestRatedFirst(rows)
	rows = store.Paginate(rows, opts.Skip, opts.limit())
	if opts.Populate {
		r.populate.solutions(rows)
	}
	return rows, nil
}

func (r *memorySolutionRepo) FindByID(id uint) (*models.Solution, error) {
	s, ok := r.table.Get(id)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memorySolutionRepo) FindByIDAndUpdate(id uint, update SolutionUpdate) (*models.Solution, error) {
	s, ok := r.table.Update(id, update.apply)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memorySolutionRepo) Count(q SolutionQuery) (int64, error) {
	return int64(r.table.Count(q.matches)), nil
}

func (r *memorySolutionRepo) Aggregate(p Pipeline[SolutionQuery]) ([]AggregateRow, error) {
	if _, err := p.resolve(solutionAverageFields, solutionGroupFields); err != nil {
		return nil, err
	}
	if p.Kind == AggregateAverage {
		avg, n := r.table.Average(p.Match.matches, func(s *models.Solution) (float64, bool) {
			return s.AverageRating, true
		})
		return []AggregateRow{{Count: int64(n), Avg: avg}}, nil
	}
	groups := r.table.GroupCount(p.Match.matches, func(s *models.Solution) (string, bool) {
		if p.Field == "disease" {
			return s.Disease, true
		}
		return s.Plant, true
	})
	return groupRows(groups, p.SortDesc, p.Limit), nil
}

func (r *memorySolutionRepo) Save(solution *models.Solution) error {
	solution.Plant = models.NormalizeKey(solution.Plant)
	solution.Disease = models.NormalizeKey(solution.Disease)
	saved, found, err := r.table.ReplaceUnique(solution.ID, *solution, func(existing *models.Solution) bool {
		return samePair(solution, existing)
	})
	if err != nil {
		return conflictErr(err)
	}
	if found {
		*solution = saved
	}
	return nil
}

// --- comments ---

type memoryCommentRepo struct {
	table    *store.Table[models.Comment, *models.Comment]
	populate populator
}

func sameAuthor(candidate, existing *models.Comment) bool {
	return candidate.SolutionID == existing.SolutionID && candidate.UserID == existing.UserID
}

func (r *memoryCommentRepo) Create(comment *models.Comment) error {
	prepareComment(comment)
	created, err := r.table.InsertUnique(*comment, func(existing *models.Comment) bool {
		return sameAuthor(comment, existing)
	})
	if err != nil {
		return conflictErr(err)
	}
	*comment = created
	return nil
}

func (r *memoryCommentRepo) FindOne(q CommentQuery) (*models.Comment, error) {
	c, ok := r.table.First(q.matches)
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memoryCommentRepo) Find(q CommentQuery, opts FindOptions) ([]models.Comment, error) {
	rows := r.table.Find(q.matches)
	newestFirst(rows)
	rows = store.Paginate(rows, opts.Skip, opts.limit())
	if opts.Populate {
		r.populate.comments(rows)
	}
	return rows, nil
}

func (r *memoryCommentRepo) FindByID(id uint) (*models.Comment, error) {
	c, ok := r.table.Get(id)
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memoryCommentRepo) FindByIDAndUpdate(id uint, update CommentUpdate) (*models.Comment, error) {
	c, ok := r.table.Update(id, update.apply)
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memoryCommentRepo) Count(q CommentQuery) (int64, error) {
	return int64(r.table.Count(q.matches)), nil
}

func (r *memoryCommentRepo) Aggregate(p Pipeline[CommentQuery]) ([]AggregateRow, error) {
	if _, err := p.resolve(commentAverageFields, commentGroupFields); err != nil {
		return nil, err
	}
	if p.Kind == AggregateAverage {
		avg, n := r.table.Average(p.Match.matches, func(c *models.Comment) (float64, bool) {
			if c.Rating == nil {
				return 0, false
			}
			return float64(*c.Rating), true
		})
		return []AggregateRow{{Count: int64(n), Avg: avg}}, nil
	}
	groups := r.table.GroupCount(p.Match.matches, func(c *models.Comment) (string, bool) {
		if c.Rating == nil {
			return "", false
		}
		return ratingKey(*c.Rating), true
	})
	return groupRows(groups, p.SortDesc, p.Limit), nil
}

func (r *memoryCommentRepo) Save(comment *models.Comment) error {
	saved, found, err := r.table.ReplaceUnique(comment.ID, *comment, func(existing *models.Comment) bool {
		return sameAuthor(comment, existing)
	})
	if err != nil {
		return conflictErr(err)
	}
	if found {
		*comment = saved
	}
	return nil
}
