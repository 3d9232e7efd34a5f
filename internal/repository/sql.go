package repository

import (
	"errors"
	"sort"
	"strings"

	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/store"
	"gorm.io/gorm"
)

const (
	orderNewestFirst    = "created_at DESC, id DESC"
	orderBestRatedFirst = "average_rating DESC, total_ratings DESC, id ASC"
)

// NewSQL builds repositories over a migrated gorm database. Each table keeps
// its own auto-increment ids.
func NewSQL(db *gorm.DB) *Repositories {
	users := &sqlUserRepo{db: db}
	pop := populator{users: users}

	return &Repositories{
		Backend:     BackendSQL,
		Users:       users,
		Predictions: &sqlPredictionRepo{db: db, populate: pop},
		Solutions:   &sqlSolutionRepo{db: db, populate: pop},
		Comments:    &sqlCommentRepo{db: db, populate: pop},
		ping: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func likeArg(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

func (q UserQuery) scope(tx *gorm.DB) *gorm.DB {
	if q.ID != 0 {
		tx = tx.Where("id = ?", q.ID)
	}
	if q.Email != "" {
		tx = tx.Where("email = ?", normalizeEmail(q.Email))
	}
	if q.ExcludeID != 0 {
		tx = tx.Where("id <> ?", q.ExcludeID)
	}
	if q.Role != "" {
		tx = tx.Where("role = ?", q.Role)
	}
	if q.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	if q.Search != "" {
		arg := likeArg(q.Search)
		tx = tx.Where("(LOWER(name) LIKE ? OR LOWER(email) LIKE ?)", arg, arg)
	}
	return tx
}

func (q PredictionQuery) scope(tx *gorm.DB) *gorm.DB {
	if q.ID != 0 {
		tx = tx.Where("id = ?", q.ID)
	}
	if q.UserID != 0 {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Outcome != "" {
		tx = tx.Where("prediction = ?", q.Outcome)
	}
	if q.HasDisease {
		tx = tx.Where("disease_type IS NOT NULL AND disease_type <> ?", "")
	}
	return tx
}

func (q SolutionQuery) scope(tx *gorm.DB) *gorm.DB {
	if q.ID != 0 {
		tx = tx.Where("id = ?", q.ID)
	}
	if q.Plant != "" {
		tx = tx.Where("plant = ?", models.NormalizeKey(q.Plant))
	}
	if q.Disease != "" {
		tx = tx.Where("disease = ?", models.NormalizeKey(q.Disease))
	}
	if q.PlantContains != "" {
		tx = tx.Where("plant LIKE ?", likeArg(q.PlantContains))
	}
	if q.DiseaseContains != "" {
		tx = tx.Where("disease LIKE ?", likeArg(q.DiseaseContains))
	}
	if q.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	return tx
}

func (q CommentQuery) scope(tx *gorm.DB) *gorm.DB {
	if q.ID != 0 {
		tx = tx.Where("id = ?", q.ID)
	}
	if q.SolutionID != 0 {
		tx = tx.Where("solution_id = ?", q.SolutionID)
	}
	if q.UserID != 0 {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	if q.ContentNot != nil {
		tx = tx.Where("content <> ?", *q.ContentNot)
	}
	if q.RatingExists {
		tx = tx.Where("rating IS NOT NULL")
	}
	return tx
}

// --- generic helpers ---

func sqlFirst[T any](tx *gorm.DB) (*T, error) {
	var rows []T
	if err := tx.Order("id ASC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func sqlFind[T any](tx *gorm.DB, order string, opts FindOptions) ([]T, error) {
	tx = tx.Order(order)
	if opts.Skip > 0 {
		tx = tx.Offset(opts.Skip)
	}
	if limit := opts.limit(); limit >= 0 {
		tx = tx.Limit(limit)
	}
	rows := []T{}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func sqlCount(tx *gorm.DB) (int64, error) {
	var n int64
	err := tx.Count(&n).Error
	return n, err
}

// sqlSave writes every column of value, zero values included. A missing row
// is not an error.
func sqlSave(db *gorm.DB, value interface{}) (bool, error) {
	res := db.Model(value).Select("*").Omit("id", "created_at").Updates(value)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// sqlUpdateByID loads, patches and saves a row inside one transaction.
func sqlUpdateByID[T any](db *gorm.DB, id uint, apply func(*T)) (*T, error) {
	var out *T
	err := db.Transaction(func(tx *gorm.DB) error {
		row, err := sqlFirst[T](tx.Where("id = ?", id))
		if err != nil || row == nil {
			return err
		}
		apply(row)
		if _, err := sqlSave(tx, row); err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sqlAverage(tx *gorm.DB, column string) ([]AggregateRow, error) {
	var res struct {
		Avg   *float64
		Count int64
	}
	if err := tx.Select("AVG(" + column + ") AS avg, COUNT(" + column + ") AS count").Scan(&res).Error; err != nil {
		return nil, err
	}
	row := AggregateRow{Count: res.Count}
	if res.Avg != nil {
		row.Avg = *res.Avg
	}
	return []AggregateRow{row}, nil
}

// sqlGroupCount groups in the database, then maps keys through keyOf and
// orders the result the same way the document store does.
func sqlGroupCount(tx *gorm.DB, column string, keyOf func(*string) (string, bool), desc bool, limit int) ([]AggregateRow, error) {
	var raw []struct {
		GroupKey *string
		Count    int64
	}
	if err := tx.Select(column + " AS group_key, COUNT(*) AS count").Group(column).Scan(&raw).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(raw))
	for _, r := range raw {
		if key, ok := keyOf(r.GroupKey); ok {
			counts[key] += r.Count
		}
	}
	groups := make([]store.Group, 0, len(counts))
	for k, c := range counts {
		groups = append(groups, store.Group{Key: k, Count: c})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groupRows(groups, desc, limit), nil
}

func presentKey(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	return *v, true
}

// --- users ---

type sqlUserRepo struct {
	db *gorm.DB
}

func (r *sqlUserRepo) model() *gorm.DB {
	return r.db.Model(&models.User{})
}

func (r *sqlUserRepo) Create(user *models.User) error {
	prepareUser(user)
	user.ID = 0
	return translate(r.db.Create(user).Error)
}

func (r *sqlUserRepo) FindOne(q UserQuery) (*models.User, error) {
	return sqlFirst[models.User](q.scope(r.model()))
}

func (r *sqlUserRepo) Find(q UserQuery, opts FindOptions) ([]models.User, error) {
	return sqlFind[models.User](q.scope(r.model()), orderNewestFirst, opts)
}

func (r *sqlUserRepo) FindByID(id uint) (*models.User, error) {
	return sqlFirst[models.User](r.model().Where("id = ?", id))
}

func (r *sqlUserRepo) FindByIDAndUpdate(id uint, update UserUpdate) (*models.User, error) {
	return sqlUpdateByID(r.db, id, update.apply)
}

func (r *sqlUserRepo) Count(q UserQuery) (int64, error) {
	return sqlCount(q.scope(r.model()))
}

func (r *sqlUserRepo) Aggregate(p Pipeline[UserQuery]) ([]AggregateRow, error) {
	column, err := p.resolve(userAverageFields, userGroupFields)
	if err != nil {
		return nil, err
	}
	tx := p.Match.scope(r.model())
	if p.Kind == AggregateAverage {
		return sqlAverage(tx, column)
	}
	return sqlGroupCount(tx, column, presentKey, p.SortDesc, p.Limit)
}

func (r *sqlUserRepo) Save(user *models.User) error {
	user.Email = normalizeEmail(user.Email)
	_, err := sqlSave(r.db, user)
	return err
}

func (r *sqlUserRepo) Delete(id uint) (*models.User, error) {
	var out *models.User
	err := r.db.Transaction(func(tx *gorm.DB) error {
		u, err := sqlFirst[models.User](tx.Model(&models.User{}).Where("id = ?", id))
		if err != nil || u == nil {
			return err
		}
		if err := tx.Delete(&models.User{}, id).Error; err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

// --- predictions ---

type sqlPredictionRepo struct {
	db       *gorm.DB
	populate populator
}

func (r *sqlPredictionRepo) model() *gorm.DB {
	return r.db.Model(&models.Prediction{})
}

func (r *sqlPredictionRepo) Create(prediction *models.Prediction) error {
	prediction.ID = 0
	return translate(r.db.Create(prediction).Error)
}

func (r *sqlPredictionRepo) FindOne(q PredictionQuery) (*models.Prediction, error) {
	return sqlFirst[models.Prediction](q.scope(r.model()))
}

func (r *sqlPredictionRepo) Find(q PredictionQuery, opts FindOptions) ([]models.Prediction, error) {
	rows, err := sqlFind[models.Prediction](q.scope(r.model()), orderNewestFirst, opts)
	if err != nil {
		return nil, err
	}
	if opts.Populate {
		r.populate.predictions(rows)
	}
	return rows, nil
}

func (r *sqlPredictionRepo) FindByID(id uint) (*models.Prediction, error) {
	return sqlFirst[models.Prediction](r.model().Where("id = ?", id))
}

func (r *sqlPredictionRepo) FindByIDAndUpdate(id uint, update PredictionUpdate) (*models.Prediction, error) {
	return sqlUpdateByID(r.db, id, update.apply)
}

func (r *sqlPredictionRepo) Count(q PredictionQuery) (int64, error) {
	return sqlCount(q.scope(r.model()))
}

func (r *sqlPredictionRepo) Aggregate(p Pipeline[PredictionQuery]) ([]AggregateRow, error) {
	column, err := p.resolve(predictionAverageFields, predictionGroupFields)
	if err != nil {
		return nil, err
	}
	tx := p.Match.scope(r.model())
	if p.Kind == AggregateAverage {
		return sqlAverage(tx, column)
	}
	return sqlGroupCount(tx, column, predictionGroupKeys[p.Field], p.SortDesc, p.Limit)
}

func (r *sqlPredictionRepo) Save(prediction *models.Prediction) error {
	_, err := sqlSave(r.db, prediction)
	return err
}

// --- solutions ---

type sqlSolutionRepo struct {
	db       *gorm.DB
	populate populator
}

func (r *sqlSolutionRepo) model() *gorm.DB {
	return r.db.Model(&models.Solution{})
}

func (r *sqlSolutionRepo) Create(solution *models.Solution) error {
	prepareSolution(solution)
	solution.ID = 0
	return translate(r.db.Create(solution).Error)
}

func (r *sqlSolutionRepo) FindOne(q SolutionQuery) (*models.Solution, error) {
	return sqlFirst[models.Solution](q.scope(r.model()))
}

func (r *sqlSolutionRepo) Find(q SolutionQuery, opts FindOptions) ([]models.Solution, error) {
	rows, err := sqlFind[models.Solution](q.scope(r.model()), orderBestRatedFirst, opts)
	if err != nil {
		return nil, err
	}
	if opts.Populate {
		r.populate.solutions(rows)
	}
	return rows, nil
}

func (r *sqlSolutionRepo) FindByID(id uint) (*models.Solution, error) {
	return sqlFirst[models.Solution](r.model().Where("id = ?", id))
}

func (r *sqlSolutionRepo) FindByIDAndUpdate(id uint, update SolutionUpdate) (*models.Solution, error) {
	return sqlUpdateByID(r.db, id, update.apply)
}

func (r *sqlSolutionRepo) Count(q SolutionQuery) (int64, error) {
	return sqlCount(q.scope(r.model()))
}

func (r *sqlSolutionRepo) Aggregate(p Pipeline[SolutionQuery]) ([]AggregateRow, error) {
	column, err := p.resolve(solutionAverageFields, solutionGroupFields)
	if err != nil {
		return nil, err
	}
	tx := p.Match.scope(r.model())
	if p.Kind == AggregateAverage {
		return sqlAverage(tx, column)
	}
	return sqlGroupCount(tx, column, presentKey, p.SortDesc, p.Limit)
}

func (r *sqlSolutionRepo) Save(solution *models.Solution) error {
	solution.Plant = models.NormalizeKey(solution.Plant)
	solution.Disease = models.NormalizeKey(solution.Disease)
	_, err := sqlSave(r.db, solution)
	return err
}

// --- comments ---

type sqlCommentRepo struct {
	db       *gorm.DB
	populate populator
}

func (r *sqlCommentRepo) model() *gorm.DB {
	return r.db.Model(&models.Comment{})
}

func (r *sqlCommentRepo) Create(comment *models.Comment) error {
	prepareComment(comment)
	comment.ID = 0
	return translate(r.db.Create(comment).Error)
}

func (r *sqlCommentRepo) FindOne(q CommentQuery) (*models.Comment, error) {
	return sqlFirst[models.Comment](q.scope(r.model()))
}

func (r *sqlCommentRepo) Find(q CommentQuery, opts FindOptions) ([]models.Comment, error) {
	rows, err := sqlFind[models.Comment](q.scope(r.model()), orderNewestFirst, opts)
	if err != nil {
		return nil, err
	}
	if opts.Populate {
		r.populate.comments(rows)
	}
	return rows, nil
}

func (r *sqlCommentRepo) FindByID(id uint) (*models.Comment, error) {
	return sqlFirst[models.Comment](r.model().Where("id = ?", id))
}

func (r *sqlCommentRepo) FindByIDAndUpdate(id uint, update CommentUpdate) (*models.Comment, error) {
	return sqlUpdateByID(r.db, id, update.apply)
}

func (r *sqlCommentRepo) Count(q CommentQuery) (int64, error) {
	return sqlCount(q.scope(r.model()))
}

func (r *sqlCommentRepo) Aggregate(p Pipeline[CommentQuery]) ([]AggregateRow, error) {
	column, err := p.resolve(commentAverageFields, commentGroupFields)
	if err != nil {
		return nil, err
	}
	tx := p.Match.scope(r.model())
	if p.Kind == AggregateAverage {
		return sqlAverage(tx, column)
	}
	return sqlGroupCount(tx, column, presentKey, p.SortDesc, p.Limit)
}

func (r *sqlCommentRepo) Save(comment *models.Comment) error {
	_, err := sqlSave(r.db, comment)
	return err
}
