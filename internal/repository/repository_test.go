package repository

import (
	"testing"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepos(t *testing.T) *Repositories {
	t.Helper()
	db, err := models.OpenDB(&config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}, "error")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every pooled connection would otherwise see its own empty database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))

	repos := NewSQL(db)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

// forEachBackend runs fn against a fresh memory and SQL backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, repos *Repositories)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory(store.New()))
	})
	t.Run("sql", func(t *testing.T) {
		fn(t, newSQLiteRepos(t))
	})
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int { return &i }

func createUser(t *testing.T, repos *Repositories, name, email string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, Password: "hash"}
	require.NoError(t, repos.Users.Create(u))
	return u
}

func createSolution(t *testing.T, repos *Repositories, plant, disease string) *models.Solution {
	t.Helper()
	s := &models.Solution{Plant: plant, Disease: disease, Description: plant + " " + disease}
	require.NoError(t, repos.Solutions.Create(s))
	return s
}

func TestUserAccessor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		u := createUser(t, repos, "Ada", "Ada@Example.com")
		assert.NotZero(t, u.ID)
		assert.Equal(t, "ada@example.com", u.Email)
		assert.Equal(t, models.RoleUser, u.Role)
		assert.True(t, u.IsActive)
		assert.False(t, u.CreatedAt.IsZero())

		found, err := repos.Users.FindOne(UserQuery{Email: "ADA@example.com"})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, u.ID, found.ID)

		missing, err := repos.Users.FindByID(u.ID + 1000)
		require.NoError(t, err)
		assert.Nil(t, missing)

		err = repos.Users.Create(&models.User{Name: "Other", Email: "ada@example.com", Password: "x"})
		assert.ErrorIs(t, err, ErrDuplicate)

		updated, err := repos.Users.FindByIDAndUpdate(u.ID, UserUpdate{Name: strPtr("Ada L."), IsActive: boolPtr(false)})
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, "Ada L.", updated.Name)
		assert.False(t, updated.IsActive)
		assert.Equal(t, u.CreatedAt.Unix(), updated.CreatedAt.Unix())

		none, err := repos.Users.FindByIDAndUpdate(u.ID+1000, UserUpdate{Name: strPtr("x")})
		require.NoError(t, err)
		assert.Nil(t, none)

		active, err := repos.Users.Count(UserQuery{ActiveOnly: true})
		require.NoError(t, err)
		assert.Equal(t, int64(0), active)

		removed, err := repos.Users.Delete(u.ID)
		require.NoError(t, err)
		require.NotNil(t, removed)
		gone, err := repos.Users.FindByID(u.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}

func boolPtr(b bool) *bool { return &b }

func TestUserEmailChangeConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		createUser(t, repos, "A", "a@example.com")
		b := createUser(t, repos, "B", "b@example.com")

		_, err := repos.Users.FindByIDAndUpdate(b.ID, UserUpdate{Email: strPtr("a@example.com")})
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestUserSearchAndPaging(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		createUser(t, repos, "Tomato Grower", "one@example.com")
		createUser(t, repos, "Apple Farmer", "two@example.com")
		third := createUser(t, repos, "Someone", "tomatofan@example.com")

		matches, err := repos.Users.Find(UserQuery{Search: "TOMATO"}, FindOptions{})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, third.ID, matches[0].ID, "newest first")

		page, err := repos.Users.Find(UserQuery{}, FindOptions{Skip: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "Apple Farmer", page[0].Name)
	})
}

func TestSaveIsLastWriteWinsAndIgnoresMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		u := createUser(t, repos, "Ada", "ada@example.com")

		u.PredictionCount = 3
		require.NoError(t, repos.Users.Save(u))
		reloaded, err := repos.Users.FindByID(u.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, reloaded.PredictionCount)

		ghost := &models.User{Name: "Ghost", Email: "ghost@example.com"}
		ghost.ID = u.ID + 1000
		require.NoError(t, repos.Users.Save(ghost))
		n, err := repos.Users.Count(UserQuery{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestSolutionAccessor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		s := createSolution(t, repos, "Tomato", " Early_Blight ")
		assert.Equal(t, "tomato", s.Plant)
		assert.Equal(t, "early_blight", s.Disease)
		assert.Equal(t, models.SeverityMedium, s.Severity)
		assert.True(t, s.IsActive)

		err := repos.Solutions.Create(&models.Solution{Plant: "TOMATO", Disease: "early_blight", Description: "dup"})
		assert.ErrorIs(t, err, ErrDuplicate)

		found, err := repos.Solutions.FindOne(SolutionQuery{Plant: "ToMaTo", Disease: "EARLY_BLIGHT", ActiveOnly: true})
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, s.ID, found.ID)

		_, err = repos.Solutions.FindByIDAndUpdate(s.ID, SolutionUpdate{IsActive: boolPtr(false)})
		require.NoError(t, err)
		hidden, err := repos.Solutions.FindOne(SolutionQuery{Plant: "tomato", Disease: "early_blight", ActiveOnly: true})
		require.NoError(t, err)
		assert.Nil(t, hidden)
	})
}

func TestSolutionsSortByRating(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		low := createSolution(t, repos, "apple", "scab")
		high := createSolution(t, repos, "grape", "black_rot")
		tieMore := createSolution(t, repos, "corn", "leaf_blight")
		tieFewer := createSolution(t, repos, "potato", "late_blight")

		set := func(id uint, avg float64, total int) {
			_, err := repos.Solutions.FindByIDAndUpdate(id, SolutionUpdate{AverageRating: &avg, TotalRatings: &total})
			require.NoError(t, err)
		}
		set(low.ID, 2, 1)
		set(high.ID, 5, 1)
		set(tieMore.ID, 4, 10)
		set(tieFewer.ID, 4, 2)

		rows, err := repos.Solutions.Find(SolutionQuery{ActiveOnly: true}, FindOptions{Limit: Unlimited})
		require.NoError(t, err)
		require.Len(t, rows, 4)
		got := []uint{rows[0].ID, rows[1].ID, rows[2].ID, rows[3].ID}
		assert.Equal(t, []uint{high.ID, tieMore.ID, tieFewer.ID, low.ID}, got)

		filtered, err := repos.Solutions.Find(SolutionQuery{PlantContains: "PO"}, FindOptions{})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "potato", filtered[0].Plant)
	})
}

func TestSolutionGroupAggregate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		createSolution(t, repos, "tomato", "a")
		createSolution(t, repos, "tomato", "b")
		createSolution(t, repos, "apple", "a")
		createSolution(t, repos, "corn", "a")

		rows, err := repos.Solutions.Aggregate(Pipeline[SolutionQuery]{
			Match:    SolutionQuery{ActiveOnly: true},
			Kind:     AggregateGroupCount,
			Field:    "plant",
			SortDesc: true,
			Limit:    2,
		})
		require.NoError(t, err)
		assert.Equal(t, []AggregateRow{{ID: "tomato", Count: 2}, {ID: "apple", Count: 1}}, rows)

		_, err = repos.Solutions.Aggregate(Pipeline[SolutionQuery]{Kind: AggregateGroupCount, Field: "description"})
		assert.ErrorIs(t, err, ErrUnsupportedPipeline)
		_, err = repos.Solutions.Aggregate(Pipeline[SolutionQuery]{Kind: AggregateKind(99), Field: "plant"})
		assert.ErrorIs(t, err, ErrUnsupportedPipeline)
	})
}

func TestPredictionAccessor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		u := createUser(t, repos, "Ada", "ada@example.com")

		healthy := &models.Prediction{UserID: u.ID, ImageURL: "/uploads/a.jpg", Outcome: models.OutcomeHealthy, Confidence: 0.9, PlantType: "tomato"}
		diseased := &models.Prediction{UserID: u.ID, ImageURL: "/uploads/b.jpg", Outcome: models.OutcomeDiseased, Confidence: 0.7, PlantType: "tomato", DiseaseType: strPtr("late_blight")}
		blank := &models.Prediction{UserID: u.ID, ImageURL: "/uploads/c.jpg", Outcome: models.OutcomeDiseased, Confidence: 0.5}
		for _, p := range []*models.Prediction{healthy, diseased, blank} {
			require.NoError(t, repos.Predictions.Create(p))
		}

		history, err := repos.Predictions.Find(PredictionQuery{UserID: u.ID}, FindOptions{Populate: true})
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, blank.ID, history[0].ID)
		require.NotNil(t, history[0].User)
		assert.Equal(t, "Ada", history[0].User.Name)
		assert.Equal(t, "ada@example.com", history[0].User.Email)

		avg, err := repos.Predictions.Aggregate(Pipeline[PredictionQuery]{Kind: AggregateAverage, Field: "confidence"})
		require.NoError(t, err)
		require.Len(t, avg, 1)
		assert.InDelta(t, 0.7, avg[0].Avg, 1e-9)
		assert.Equal(t, int64(3), avg[0].Count)

		plants, err := repos.Predictions.Aggregate(Pipeline[PredictionQuery]{Kind: AggregateGroupCount, Field: "plantType", SortDesc: true, Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, []AggregateRow{{ID: "tomato", Count: 2}, {ID: "unknown", Count: 1}}, plants)

		diseases, err := repos.Predictions.Aggregate(Pipeline[PredictionQuery]{
			Match: PredictionQuery{HasDisease: true},
			Kind:  AggregateGroupCount, Field: "diseaseType", SortDesc: true, Limit: 5,
		})
		require.NoError(t, err)
		assert.Equal(t, []AggregateRow{{ID: "late_blight", Count: 1}}, diseases)

		owned, err := repos.Predictions.FindOne(PredictionQuery{ID: healthy.ID, UserID: u.ID + 1000})
		require.NoError(t, err)
		assert.Nil(t, owned)

		fb := &models.Feedback{IsCorrect: false, Feedback: "wrong plant"}
		updated, err := repos.Predictions.FindByIDAndUpdate(healthy.ID, PredictionUpdate{UserFeedback: fb})
		require.NoError(t, err)
		require.NotNil(t, updated.UserFeedback)
		assert.Equal(t, "wrong plant", updated.UserFeedback.Feedback)
	})
}

func TestCommentAccessor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repos *Repositories) {
		u := createUser(t, repos, "Ada", "ada@example.com")
		s := createSolution(t, repos, "tomato", "late_blight")

		c := &models.Comment{SolutionID: s.ID, UserID: u.ID, Rating: intPtr(4)}
		require.NoError(t, repos.Comments.Create(c))
		assert.Equal(t, []uint{}, c.Likes)
		assert.True(t, c.IsActive)

		err := repos.Comments.Create(&models.Comment{SolutionID: s.ID, UserID: u.ID, Content: "again"})
		assert.ErrorIs(t, err, ErrDuplicate)

		c.ToggleLike(u.ID)
		c.Content = "works well"
		require.NoError(t, repos.Comments.Save(c))

		empty := ""
		visible, err := repos.Comments.Find(CommentQuery{SolutionID: s.ID, ActiveOnly: true, ContentNot: &empty}, FindOptions{Populate: true})
		require.NoError(t, err)
		require.Len(t, visible, 1)
		assert.Equal(t, []uint{u.ID}, visible[0].Likes)
		require.NotNil(t, visible[0].User)
		assert.Equal(t, "Ada", visible[0].User.Name)
		assert.Empty(t, visible[0].User.Email)

		avg, err := repos.Comments.Aggregate(Pipeline[CommentQuery]{
			Match: CommentQuery{SolutionID: s.ID, RatingExists: true},
			Kind:  AggregateAverage, Field: "rating",
		})
		require.NoError(t, err)
		assert.Equal(t, []AggregateRow{{Count: 1, Avg: 4}}, avg)

		dist, err := repos.Comments.Aggregate(Pipeline[CommentQuery]{Kind: AggregateGroupCount, Field: "rating"})
		require.NoError(t, err)
		assert.Equal(t, []AggregateRow{{ID: "4", Count: 1}}, dist)
	})
}

func TestMemoryIDsAreSharedAcrossEntities(t *testing.T) {
	repos := NewMemory(store.New())
	u := createUser(t, repos, "Ada", "ada@example.com")
	s := createSolution(t, repos, "tomato", "late_blight")
	c := &models.Comment{SolutionID: s.ID, UserID: u.ID}
	require.NoError(t, repos.Comments.Create(c))

	assert.Equal(t, []uint{1, 2, 3}, []uint{u.ID, s.ID, c.ID})
}

func TestOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	repos, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, repos.Backend)
	assert.NoError(t, repos.Ping())

	cfg.Storage.Backend = "cassandra"
	_, err = Open(cfg)
	assert.Error(t, err)

	cfg.Storage.Backend = BackendSQL
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"}
	repos, err = Open(cfg)
	require.NoError(t, err)
	defer repos.Close()
	assert.Equal(t, BackendSQL, repos.Backend)
	stats, err := repos.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats["users"])
}
