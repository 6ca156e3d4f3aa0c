package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisRecord(t *testing.T) {
	resume := types.NewStructuredResume()
	resume.Name = types.StringPtr("Jane Doe")
	resume.Contact.Email = types.StringPtr("jane@example.com")
	resume.Skills = []string{"Python", "SQL"}

	job := types.NewJobProfile()
	job.Title = types.StringPtr("Data Engineer")

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report := types.AnalysisReport{
		AnalysisID: "a-1",
		Resume:     resume,
		Job:        job,
		Match: types.MatchResult{
			MatchingSkills: []string{"python", "sql"},
			MissingSkills:  []string{"java"},
			MatchScore:     67,
			Strength:       types.StrengthGood,
		},
		Degraded:  true,
		CreatedAt: created,
	}

	rec, err := NewAnalysisRecord(report, AnalysisSource{ResumeFileName: "cv.pdf", JobTextID: "j-1"}, "COMPLETED")
	require.NoError(t, err)

	assert.Equal(t, "a-1", rec.AnalysisID)
	assert.Equal(t, "Jane Doe", rec.CandidateName)
	assert.Equal(t, "jane@example.com", rec.CandidateEmail)
	assert.Equal(t, "Data Engineer", rec.JobTitle)
	assert.Empty(t, rec.JobCompany)
	assert.Equal(t, 67, rec.MatchScore)
	assert.Equal(t, "Good match", rec.MatchStrength)
	assert.True(t, rec.Degraded)
	assert.Equal(t, "COMPLETED", rec.Status)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, "analysis_records", rec.TableName())

	matching, err := rec.MatchingSkills()
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "sql"}, matching)
	missing, err := rec.MissingSkills()
	require.NoError(t, err)
	assert.Equal(t, []string{"java"}, missing)

	var decoded types.StructuredResume
	require.NoError(t, json.Unmarshal(rec.ResumeJSON, &decoded))
	assert.Equal(t, []string{"Python", "SQL"}, decoded.Skills)
}

func TestSkillsFromEmptyJSON(t *testing.T) {
	rec := &AnalysisRecord{}
	got, err := rec.MatchingSkills()
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	rec.MissingSkillsJSON = []byte("null")
	got, err = rec.MissingSkills()
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	rec.MissingSkillsJSON = []byte("{")
	_, err = rec.MissingSkills()
	assert.Error(t, err)
}

func TestNewOutboxMessage(t *testing.T) {
	msg, err := NewOutboxMessage("a1", "analysis.completed", "ex", "rk", map[string]int{"match_score": 67})
	require.NoError(t, err)
	assert.Equal(t, `{"match_score":67}`, msg.Payload)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, "ex", msg.TargetExchange)

	_, err = NewOutboxMessage("a1", "x", "ex", "rk", make(chan int))
	assert.Error(t, err)
}

func TestOutboxMarkPublished(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	msg := &OutboxMessage{Status: OutboxStatusPending}

	msg.MarkPublished(errors.New("channel closed"), now, 2)
	assert.Equal(t, OutboxStatusPending, msg.Status)
	assert.Equal(t, 1, msg.RetryCount)
	assert.Equal(t, "channel closed", msg.ErrorMessage)

	msg.MarkPublished(errors.New("channel closed"), now, 2)
	assert.Equal(t, OutboxStatusFailed, msg.Status, "达到重试上限")

	ok := &OutboxMessage{Status: OutboxStatusPending, ErrorMessage: "old"}
	ok.MarkPublished(nil, now, 2)
	assert.Equal(t, OutboxStatusSent, ok.Status)
	require.NotNil(t, ok.ProcessedAt)
	assert.Equal(t, now, *ok.ProcessedAt)
	assert.Empty(t, ok.ErrorMessage)
}
