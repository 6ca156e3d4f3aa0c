package matcher

import (
	"testing"

	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
)

func resumeWithSkills(skills ...string) types.StructuredResume {
	r := types.NewStructuredResume()
	r.Skills = skills
	return r
}

func keywords(tokens ...string) types.KeywordList {
	list := make(types.KeywordList, 0, len(tokens))
	for i, tok := range tokens {
		list = append(list, types.Keyword{Token: tok, Frequency: len(tokens) - i})
	}
	return list
}

func TestCompareBasicExample(t *testing.T) {
	res := New().Compare(resumeWithSkills("Python", "SQL"), keywords("python", "sql", "aws"))

	assert.Equal(t, []string{"python", "sql"}, res.MatchingSkills)
	assert.Equal(t, []string{"aws"}, res.MissingSkills)
	assert.Equal(t, 67, res.MatchScore)
	assert.Equal(t, types.StrengthGood, res.Strength)
	assert.Equal(t, []string{"Python", "SQL"}, res.MatchedResumeSkills, "展示时保留简历原始大小写")
}

func TestCompareEmptyKeywords(t *testing.T) {
	res := New().Compare(resumeWithSkills("Go"), nil)
	assert.Equal(t, 0, res.MatchScore)
	assert.Empty(t, res.MatchingSkills)
	assert.Empty(t, res.MissingSkills)
	assert.NotNil(t, res.MatchingSkills)
	assert.Equal(t, types.StrengthWeak, res.Strength)
}

func TestCompareEmptySkills(t *testing.T) {
	res := New().Compare(types.NewStructuredResume(), keywords("go", "redis"))
	assert.Equal(t, 0, res.MatchScore)
	assert.Equal(t, []string{"go", "redis"}, res.MissingSkills)
}

func TestCompareSubstringMatches(t *testing.T) {
	res := New().Compare(resumeWithSkills("python3"), keywords("python"))
	assert.Equal(t, []string{"python"}, res.MatchingSkills)
	assert.Equal(t, 100, res.MatchScore)

	res = New().Compare(resumeWithSkills("Kubernetes Administration"), keywords("kubernetes"))
	assert.Equal(t, []string{"kubernetes"}, res.MatchingSkills)
}

func TestCompareSynonymsAreNotUnified(t *testing.T) {
	res := New().Compare(resumeWithSkills("JS"), keywords("javascript"))
	assert.Empty(t, res.MatchingSkills)
	assert.Equal(t, []string{"javascript"}, res.MissingSkills)
}

func TestCompareShortSkillFalsePositive(t *testing.T) {
	// 单字母技能会作为子串命中无关关键词，这是词面匹配的已知局限
	res := New().Compare(resumeWithSkills("R"), keywords("car", "docker", "go"))
	assert.Equal(t, []string{"car", "docker"}, res.MatchingSkills)
	assert.Equal(t, []string{"go"}, res.MissingSkills)
	assert.Equal(t, 67, res.MatchScore)
}

func TestCompareIgnoresBlankSkills(t *testing.T) {
	res := New().Compare(resumeWithSkills("", "  "), keywords("go"))
	assert.Equal(t, 0, res.MatchScore)
	assert.Empty(t, res.MatchedResumeSkills)
}

func TestCompareRespectsTopN(t *testing.T) {
	kws := keywords("go", "redis", "kafka", "mysql")
	res := New(WithTopN(2), WithDisplayTopN(3)).Compare(resumeWithSkills("Go", "MySQL"), kws)

	assert.Equal(t, []string{"go"}, res.MatchingSkills)
	assert.Equal(t, []string{"redis"}, res.MissingSkills, "只考虑前 N 个关键词")
	assert.Equal(t, 50, res.MatchScore)
	assert.Equal(t, []string{"go", "redis", "kafka"}, res.JobSummaryKeywords)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0, Score(0, 0))
	assert.Equal(t, 0, Score(3, 0))
	assert.Equal(t, 33, Score(1, 3))
	assert.Equal(t, 100, Score(5, 5))
	assert.Equal(t, 100, Score(7, 5))
}

func TestStrengthFor(t *testing.T) {
	cases := map[int]types.MatchStrength{
		100: types.StrengthExcellent,
		80:  types.StrengthExcellent,
		79:  types.StrengthStrong,
		70:  types.StrengthStrong,
		60:  types.StrengthGood,
		50:  types.StrengthModerate,
		49:  types.StrengthWeak,
		0:   types.StrengthWeak,
	}
	for score, want := range cases {
		assert.Equal(t, want, StrengthFor(score), "score %d", score)
	}
}

func TestCompareDeterministic(t *testing.T) {
	r := resumeWithSkills("Go", "Docker", "PostgreSQL")
	kws := keywords("go", "postgres", "aws", "docker")
	assert.Equal(t, New().Compare(r, kws), New().Compare(r, kws))
}
