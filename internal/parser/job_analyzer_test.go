package parser

import (
	"testing"

	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJob = `Job Title: Senior Python Developer (Machine Learning)
Location: San Francisco, CA

About Acme Robotics

We are looking for an experienced Python Developer with a strong background in Machine Learning.
You need 5+ years of professional experience building production systems.

Requirements:
- Python, Machine Learning, SQL
- Data Analysis

Nice to have
- AWS, Docker
`

func TestJobAnalyzerFullPosting(t *testing.T) {
	p := NewJobAnalyzer(nil).Analyze(sampleJob)

	assert.Equal(t, "Senior Python Developer (Machine Learning)", types.Deref(p.Title))
	assert.Equal(t, "Acme Robotics", types.Deref(p.Company))
	assert.Equal(t, "Senior", types.Deref(p.Seniority))
	assert.Equal(t, "5+", types.Deref(p.ExperienceYears))
	assert.Equal(t, []string{"Python, Machine Learning, SQL", "Data Analysis"}, p.Required)
	assert.Equal(t, []string{"AWS, Docker"}, p.Preferred)
	assert.NotNil(t, p.Keywords)
}

func TestExtractJobTitleFallbacks(t *testing.T) {
	assert.Equal(t, "Data Scientist", types.Deref(extractJobTitle("We are hiring a\nData Scientist to join us")))
	assert.Equal(t, "Platform Wizard", types.Deref(extractJobTitle("Acme\nPosition: Platform Wizard\n")))
	assert.Equal(t, "Head of Growth", types.Deref(extractJobTitle("\n  (Head of Growth):\nDetails")))

	long := "An extremely long first line that certainly exceeds the fifty character limit"
	got := types.Deref(extractJobTitle(long))
	assert.Equal(t, long[:50]+"...", got)
	assert.Nil(t, extractJobTitle("  \n "))
}

func TestDetectSeniorityPriority(t *testing.T) {
	cases := []struct {
		title, text, want string
	}{
		{"Engineering Manager", "", "Manager"},
		{"", "You will manage a team of staff engineers as a senior lead", "Manager"},
		{"Principal Engineer", "senior", "Principal"},
		{"", "Staff Software Engineer, senior", "Staff"},
		{"Sr. Backend Engineer", "", "Senior"},
		{"", "Junior developer, entry-level friendly", "Junior"},
		{"", "mid-level role", "Mid-Level"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, types.Deref(detectSeniority(tc.text, tc.title)), "%s / %s", tc.title, tc.text)
	}
	assert.Nil(t, detectSeniority("Backend Engineer", "Build APIs"))
}

func TestExtractExperienceYears(t *testing.T) {
	cases := map[string]string{
		"3-5 years of experience":                 "3+",
		"at least 7 years of relevant experience": "7+",
		"minimum of 2 years work experience":      "2+",
		"10+ years experience with Go":            "10+",
		"2 to 4 years of professional experience": "2+",
		"a graduate with 0 years experience":      "", // 单独的数字不算年限要求
		"experience with 5 different databases":   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, types.Deref(extractExperienceYears(in)), in)
	}
}

func TestRequirementsWithoutSections(t *testing.T) {
	text := "Backend role\nRequired Skills: Python, SQL\nPreferred: AWS\nKubernetes knowledge is a plus\nDocker is essential"
	req, pref := NewJobAnalyzer(nil).extractRequirements(text)
	assert.Equal(t, []string{"Python, SQL", "Docker is essential"}, req)
	assert.Equal(t, []string{"AWS", "Kubernetes knowledge is a plus"}, pref)
}

func TestJobAnalyzerEmptyInput(t *testing.T) {
	p := NewJobAnalyzer(nil).Analyze("   ")
	require.NotNil(t, p.Required)
	assert.Nil(t, p.Title)
	assert.Empty(t, p.Required)
	assert.Empty(t, p.Preferred)
}
