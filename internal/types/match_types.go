package types

import "time"

// Keyword 关键词及其出现频次
type Keyword struct {
	Token     string `json:"token"`
	Frequency int    `json:"frequency"`
}

// KeywordList 按频次降序排列的关键词列表，同频次按首次出现顺序
type KeywordList []Keyword

// Top 返回前 n 个关键词，n <= 0 时返回空列表
func (l KeywordList) Top(n int) KeywordList {
	if n <= 0 {
		return KeywordList{}
	}
	if n >= len(l) {
		return l
	}
	return l[:n]
}

// Tokens 返回关键词文本
func (l KeywordList) Tokens() []string {
	out := make([]string, 0, len(l))
	for _, k := range l {
		out = append(out, k.Token)
	}
	return out
}

// MatchStrength 匹配强度分档
type MatchStrength string

const (
	StrengthExcellent MatchStrength = "Excellent match"
	StrengthStrong    MatchStrength = "Strong match"
	StrengthGood      MatchStrength = "Good match"
	StrengthModerate  MatchStrength = "Moderate match"
	StrengthWeak      MatchStrength = "Weak match"
)

// MatchResult 简历技能与岗位关键词的比较结果
type MatchResult struct {
	MatchingSkills      []string      `json:"matching_skills"`       // 被简历技能覆盖的岗位关键词
	MissingSkills       []string      `json:"missing_skills"`        // 未被覆盖的岗位关键词
	JobSummaryKeywords  []string      `json:"job_summary_keywords"`  // 用于展示的高频关键词
	MatchScore          int           `json:"match_score"`           // 0-100
	MatchedResumeSkills []string      `json:"matched_resume_skills"` // 参与匹配的简历技能，保留原始大小写
	Strength            MatchStrength `json:"match_strength"`
}

// JobProfile 岗位描述的结构化摘要
type JobProfile struct {
	Title           *string     `json:"title"`
	Company         *string     `json:"company"`
	Seniority       *string     `json:"seniority"`
	ExperienceYears *string     `json:"experience_years"`
	Required        []string    `json:"required"`
	Preferred       []string    `json:"preferred"`
	Keywords        KeywordList `json:"keywords"`
}

// NewJobProfile 返回空的岗位摘要
func NewJobProfile() JobProfile {
	return JobProfile{
		Required:  []string{},
		Preferred: []string{},
		Keywords:  KeywordList{},
	}
}

// AnalysisReport 一次完整分析的输出
type AnalysisReport struct {
	AnalysisID string           `json:"analysis_id"`
	Resume     StructuredResume `json:"resume"`
	Sections   SectionMap       `json:"sections"`
	Job        JobProfile       `json:"job"`
	Match      MatchResult      `json:"match"`
	Degraded   bool             `json:"degraded"` // 实体识别模型不可用，仅使用规则提取
	CreatedAt  time.Time        `json:"created_at"`
}
