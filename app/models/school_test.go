package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchoolCancelScheduling(t *testing.T) {
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cancelAt := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

	s := &School{StripeCurrentPeriodEnd: &end}
	assert.False(t, s.HasCancelScheduled())
	assert.Nil(t, s.CancelEffectiveAt())

	s.StripeCancelAtPeriodEnd = true
	assert.True(t, s.HasCancelScheduled())
	assert.Equal(t, &end, s.CancelEffectiveAt())

	s.StripeCancelAt = &cancelAt
	assert.Equal(t, &cancelAt, s.CancelEffectiveAt())

	s.ClearCancelScheduling()
	assert.False(t, s.HasCancelScheduled())
	assert.Equal(t, &end, s.StripeCurrentPeriodEnd)
}

func TestSchoolName(t *testing.T) {
	assert.Equal(t, "north", (&School{Slug: "north"}).Name())
	assert.Equal(t, "North High", (&School{Slug: "north", DisplayName: "North High"}).Name())
}

func TestSchoolNotificationRecipients(t *testing.T) {
	s := &School{NotificationEmails: " office@north.test, ,head@north.test "}
	assert.Equal(t, []string{"office@north.test", "head@north.test"}, s.NotificationRecipients())
	assert.Nil(t, (&School{}).NotificationRecipients())
}

func TestSchoolStatusChoices(t *testing.T) {
	s := &School{CustomStatuses: "Waitlisted, Accepted, Interview ,"}
	assert.Equal(t, []string{"New", "In Review", "Accepted", "Rejected", "Waitlisted", "Interview"}, s.StatusChoices())
	assert.Equal(t, DefaultSubmissionStatuses, (&School{}).StatusChoices())
}

func TestSchoolValidate(t *testing.T) {
	assert.NoError(t, (&School{Slug: "north", Plan: "pro"}).Validate())
	assert.Error(t, (&School{Slug: "north", Plan: "enterprise"}).Validate())
	assert.Error(t, (&School{Slug: "north", Plan: "pro", ThemePrimaryColor: "blue"}).Validate())
	assert.NoError(t, (&School{Slug: "north", Plan: "pro", ThemePrimaryColor: "#1a2b3c"}).Validate())
}
