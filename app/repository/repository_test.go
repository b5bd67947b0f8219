package repository

import (
	"testing"
	"time"

	"github.com/ManuelReschke/FormFox/app/models"
	"github.com/ManuelReschke/FormFox/internal/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRepos(t *testing.T) (*Repositories, *gorm.DB) {
	t.Helper()
	db := database.NewTestDB(t)
	return NewRepositories(db), db
}

func seedSchool(t *testing.T, repos *Repositories, slug string) *models.School {
	t.Helper()
	s := &models.School{Slug: slug, Plan: "pro", IsActive: true}
	require.NoError(t, repos.School.Create(s))
	return s
}

func TestUserRepository(t *testing.T) {
	repos, _ := newRepos(t)

	u, err := models.CreateUser("Office", "office@north.test", "secret123", models.ROLE_STAFF)
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(u))

	found, err := repos.User.GetByEmail(" OFFICE@north.test")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.Nil(t, found.LastLoginAt)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repos.User.UpdateLastLogin(u.ID, at))
	found, err = repos.User.GetByID(u.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	assert.True(t, at.Equal(*found.LastLoginAt))

	_, err = repos.User.GetByEmail("nobody@north.test")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	count, err := repos.User.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSchoolMembership(t *testing.T) {
	repos, _ := newRepos(t)
	north := seedSchool(t, repos, "north")
	south := seedSchool(t, repos, "south")

	require.NoError(t, repos.School.AddMember(7, north.ID))
	s, err := repos.School.SchoolForUser(7)
	require.NoError(t, err)
	assert.Equal(t, "north", s.Slug)

	ok, err := repos.School.IsMember(7, south.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// a user belongs to exactly one school
	require.NoError(t, repos.School.AddMember(7, south.ID))
	s, err = repos.School.SchoolForUser(7)
	require.NoError(t, err)
	assert.Equal(t, "south", s.Slug)

	_, err = repos.School.SchoolForUser(8)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSchoolUpdateLeavesBillingFields(t *testing.T) {
	repos, db := newRepos(t)
	s := seedSchool(t, repos, "north")
	require.NoError(t, db.Model(s).Updates(map[string]any{"plan": "growth", "stripe_subscription_id": "sub_1"}).Error)

	edit := *s
	edit.Plan = "trial"
	edit.IsActive = false
	edit.StripeSubscriptionID = ""
	edit.DisplayName = "North High"
	edit.ThemePrimaryColor = "#112233"
	require.NoError(t, repos.School.Update(&edit))

	got, err := repos.School.GetBySlug("NORTH")
	require.NoError(t, err)
	assert.Equal(t, "North High", got.DisplayName)
	assert.Equal(t, "#112233", got.ThemePrimaryColor)
	assert.Equal(t, "growth", got.Plan)
	assert.True(t, got.IsActive)
	assert.Equal(t, "sub_1", got.StripeSubscriptionID)
}

func TestSchoolList(t *testing.T) {
	repos, _ := newRepos(t)
	seedSchool(t, repos, "south")
	seedSchool(t, repos, "north")

	schools, err := repos.School.List(0, 10)
	require.NoError(t, err)
	require.Len(t, schools, 2)
	assert.Equal(t, "north", schools[0].Slug)
}

func TestSubmissionRepository(t *testing.T) {
	repos, db := newRepos(t)
	north := seedSchool(t, repos, "north")
	south := seedSchool(t, repos, "south")

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	create := func(schoolID uint, status, formKey string, at time.Time) *models.Submission {
		sub := &models.Submission{SchoolID: schoolID, Status: status, FormKey: formKey}
		require.NoError(t, sub.SetFields(map[string]string{"student_name": "Ada"}))
		require.NoError(t, repos.Submission.Create(sub))
		require.NoError(t, db.Model(sub).UpdateColumn("created_at", at).Error)
		return sub
	}
	first := create(north.ID, "", "", day1)
	create(north.ID, models.SubmissionStatusAccepted, "", day1.Add(time.Hour))
	create(north.ID, "", "transfer", day2)
	create(south.ID, "", "", day2)

	got, err := repos.Submission.GetByPublicID(north.ID, first.PublicID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusNew, got.Status)
	assert.Equal(t, "Ada", got.Fields()["student_name"])

	_, err = repos.Submission.GetByPublicID(south.ID, first.PublicID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	all, err := repos.Submission.ListBySchool(north.ID, SubmissionFilter{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "transfer", all[0].FormKey)

	n, err := repos.Submission.CountBySchool(north.ID, SubmissionFilter{Status: models.SubmissionStatusNew})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repos.Submission.CountBySchool(north.ID, SubmissionFilter{FormKey: "transfer"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repos.Submission.UpdateStatus(got, models.SubmissionStatusRejected))
	assert.Equal(t, models.SubmissionStatusRejected, got.Status)

	counts, err := repos.Submission.StatusCounts(north.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.StatusStats{
		{Status: models.SubmissionStatusAccepted, Count: 1},
		{Status: models.SubmissionStatusNew, Count: 1},
		{Status: models.SubmissionStatusRejected, Count: 1},
	}, counts)

	daily, err := repos.Submission.GetDailyStats(north.ID, day1.Add(-time.Hour), day2.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []models.DailyStats{
		{Date: "2026-03-01", Count: 2},
		{Date: "2026-03-02", Count: 1},
	}, daily)
}

func TestAuditRepository(t *testing.T) {
	repos, _ := newRepos(t)
	north := seedSchool(t, repos, "north")

	for i, action := range []string{models.AuditActionUpdate, models.AuditActionExport} {
		entry := &models.AdminAuditLog{ActorID: uint(i + 1), SchoolID: north.ID, Action: action, ModelLabel: "submissions.submission"}
		require.NoError(t, repos.Audit.Create(entry))
	}
	require.NoError(t, repos.Audit.Create(&models.AdminAuditLog{ActorID: 1, SchoolID: north.ID + 1, Action: models.AuditActionUpdate, ModelLabel: "x"}))

	entries, err := repos.Audit.ListBySchool(north.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.AuditActionExport, entries[0].Action)

	n, err := repos.Audit.CountBySchool(north.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGlobalFactory(t *testing.T) {
	_, err := GetGlobalRepositories()
	require.ErrorIs(t, err, ErrFactoryNotInitialized)

	db := database.NewTestDB(t)
	InitializeFactory(db)
	InitializeFactory(database.NewTestDB(t))

	f, err := GetGlobalFactory()
	require.NoError(t, err)
	assert.Same(t, db, f.db)

	first, err := GetGlobalRepositories()
	require.NoError(t, err)
	second, err := GetGlobalRepositories()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.NotNil(t, first.School)
}
