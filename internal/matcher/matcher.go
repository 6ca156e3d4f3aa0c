// Package matcher 比较简历技能与岗位关键词并给出匹配分数
package matcher

import (
	"math"
	"strings"

	"resume-match-go/internal/types"

	"github.com/ecodeclub/ekit/slice"
)

const (
	DefaultTopN        = 50
	DefaultDisplayTopN = 20
)

// Matcher 基于词面重叠的匹配器，不处理同义词
type Matcher struct {
	topN        int
	displayTopN int
}

// Option 匹配器选项
type Option func(*Matcher)

// WithTopN 设置参与计算的岗位关键词数量
func WithTopN(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.topN = n
		}
	}
}

// WithDisplayTopN 设置展示用关键词数量
func WithDisplayTopN(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.displayTopN = n
		}
	}
}

// New 创建匹配器
func New(opts ...Option) *Matcher {
	m := &Matcher{topN: DefaultTopN, displayTopN: DefaultDisplayTopN}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type normalizedSkill struct {
	original string
	lower    string
}

// Compare 计算简历技能对岗位关键词的覆盖情况。
// 技能 s 覆盖关键词 k 的条件是二者相等或其中一个是另一个的子串，只比较小写形式。
// 因此很短的技能（如 "r"）会命中任何包含该字母的关键词。
func (m *Matcher) Compare(resume types.StructuredResume, jobKeywords types.KeywordList) types.MatchResult {
	considered := jobKeywords.Top(m.topN)
	result := types.MatchResult{
		MatchingSkills:      []string{},
		MissingSkills:       []string{},
		JobSummaryKeywords:  jobKeywords.Top(m.displayTopN).Tokens(),
		MatchedResumeSkills: []string{},
	}

	skills := slice.Map(resume.Skills, func(_ int, s string) normalizedSkill {
		return normalizedSkill{original: s, lower: strings.ToLower(strings.TrimSpace(s))}
	})
	used := make([]bool, len(skills))

	for _, kw := range considered {
		k := strings.ToLower(strings.TrimSpace(kw.Token))
		covered := false
		for i, s := range skills {
			if s.lower == "" || k == "" {
				continue
			}
			if covers(s.lower, k) {
				covered = true
				used[i] = true
			}
		}
		if covered {
			result.MatchingSkills = append(result.MatchingSkills, kw.Token)
		} else {
			result.MissingSkills = append(result.MissingSkills, kw.Token)
		}
	}

	for i, s := range skills {
		if used[i] {
			result.MatchedResumeSkills = append(result.MatchedResumeSkills, s.original)
		}
	}

	result.MatchScore = Score(len(result.MatchingSkills), len(considered))
	result.Strength = StrengthFor(result.MatchScore)
	return result
}

func covers(skill, keyword string) bool {
	return skill == keyword || strings.Contains(skill, keyword) || strings.Contains(keyword, skill)
}

// Score 返回 round(100*matched/max(1,total))，结果限制在 0 到 100
func Score(matched, total int) int {
	if total <= 0 || matched <= 0 {
		return 0
	}
	score := int(math.Round(100 * float64(matched) / float64(total)))
	return max(0, min(100, score))
}

// StrengthFor 按分数划分匹配强度
func StrengthFor(score int) types.MatchStrength {
	switch {
	case score >= 80:
		return types.StrengthExcellent
	case score >= 70:
		return types.StrengthStrong
	case score >= 60:
		return types.StrengthGood
	case score >= 50:
		return types.StrengthModerate
	default:
		return types.StrengthWeak
	}
}
