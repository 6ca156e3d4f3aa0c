package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"resume-match-go/internal/types"
)

// 常见职位名称，出现在岗位描述开头时直接作为职位
var commonJobTitles = []string{
	"Machine Learning Engineer", "Full Stack Developer", "Database Administrator", "System Administrator",
	"Software Engineer", "Data Scientist", "DevOps Engineer", "Frontend Developer", "Backend Developer",
	"Data Analyst", "Product Manager", "QA Engineer", "UX Designer", "UI Designer", "Cloud Engineer",
	"Mobile Developer", "Android Developer", "iOS Developer", "Web Developer", "Security Engineer",
}

// 资历级别，按优先级从高到低
var seniorityLevels = []struct {
	level string
	re    *regexp.Regexp
}{
	{"Manager", regexp.MustCompile(`(?i)\b(?:manager|manage)\b`)},
	{"Principal", regexp.MustCompile(`(?i)\bprincipal\b`)},
	{"Staff", regexp.MustCompile(`(?i)\bstaff\s+(?:engineer|software|developer)\b`)},
	{"Senior", regexp.MustCompile(`(?i)\b(?:senior|sr\.|lead)(?:\s|$)`)},
	{"Mid-Level", regexp.MustCompile(`(?i)\b(?:mid-level|mid level|intermediate)\b`)},
	{"Junior", regexp.MustCompile(`(?i)\b(?:junior|jr\.|entry-level|entry level|graduate)(?:\s|$)`)},
}

var (
	titlePatternRe  = regexp.MustCompile(`(?i)(?:job title|position|role|title)\s*(?::|\bis\b|\bas\b)\s*([^\n.]+)`)
	aboutCompanyRe  = regexp.MustCompile(`(?im)^\s*about\s+(?:us\s*[:\-–]\s*)?([A-Z][\w&.,'\- ]{1,60}?)\s*[:.]?\s*$`)
	companyLineRe   = regexp.MustCompile(`(?im)^\s*company\s*[:\-–]\s*(.+?)\s*$`)
	experienceYrsRe = regexp.MustCompile(`(?i)(\d{1,2}\s*(?:to|-|–|—)\s*\d{1,2}|\d{1,2}\s*\+|\+\s*\d{1,2}|at least\s+\d{1,2}|minimum\s+(?:of\s+)?\d{1,2})\s+years?(?:\s+of)?\s+(?:relevant\s+)?(?:professional\s+)?(?:work\s+)?experience`)
	firstNumberRe   = regexp.MustCompile(`\d{1,2}`)
	inlineReqRe     = regexp.MustCompile(`(?i)^\s*(?:required|requirements|must have)[^:\n]{0,30}:\s*(.+)$`)
	inlinePrefRe    = regexp.MustCompile(`(?i)^\s*(?:preferred|nice to have|bonus|plus)[^:\n]{0,30}:\s*(.+)$`)
	lineBulletRe    = regexp.MustCompile(`^[\s\-*•·▪●◦>]+`)
)

var (
	requiredCues  = []string{"required", "must have", "must be", "essential", "necessity"}
	preferredCues = []string{"preferred", "nice to have", "a plus", "is a plus", "advantage", "beneficial", "bonus"}
)

const maxFallbackTitleRunes = 50

// JobAnalyzer 提取岗位描述的职位、公司、资历、经验年限以及必备/加分要求
type JobAnalyzer struct {
	segmenter *Segmenter
}

// NewJobAnalyzer 创建岗位分析器，keywords 为空时使用默认的岗位章节关键字
func NewJobAnalyzer(keywords SectionKeywords) *JobAnalyzer {
	if len(keywords) == 0 {
		keywords = DefaultJobSectionKeywords()
	}
	return &JobAnalyzer{segmenter: NewSegmenter(keywords)}
}

// Analyze 分析岗位描述，关键词由调用方填充
func (a *JobAnalyzer) Analyze(text string) types.JobProfile {
	profile := types.NewJobProfile()
	if strings.TrimSpace(text) == "" {
		return profile
	}

	profile.Title = extractJobTitle(text)
	profile.Company = extractCompany(text)
	profile.Seniority = detectSeniority(text, types.Deref(profile.Title))
	profile.ExperienceYears = extractExperienceYears(text)
	profile.Required, profile.Preferred = a.extractRequirements(text)
	return profile
}

// extractJobTitle 依次尝试常见职位、"Job Title: X" 形式，最后退回到第一行
func extractJobTitle(text string) *string {
	lines := strings.Split(text, "\n")
	head := lines
	if len(head) > 10 {
		head = head[:10]
	}
	firstLines := strings.ToLower(strings.Join(head, " "))

	for _, title := range commonJobTitles {
		if strings.Contains(firstLines, strings.ToLower(title)) {
			return types.StringPtr(title)
		}
	}

	if m := titlePatternRe.FindStringSubmatch(strings.Join(head, "\n")); m != nil {
		if t := types.StringPtr(m[1]); t != nil {
			return t
		}
	}

	for _, line := range lines {
		clean := strings.TrimSpace(strings.NewReplacer("(", "", ")", "", ":", "").Replace(line))
		if clean == "" {
			continue
		}
		if utf8.RuneCountInString(clean) > maxFallbackTitleRunes {
			clean = string([]rune(clean)[:maxFallbackTitleRunes]) + "..."
		}
		return types.StringPtr(clean)
	}
	return nil
}

func extractCompany(text string) *string {
	if m := companyLineRe.FindStringSubmatch(text); m != nil {
		return types.StringPtr(m[1])
	}
	if m := aboutCompanyRe.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		lower := strings.ToLower(name)
		if lower != "the role" && lower != "the team" && lower != "the company" && lower != "you" && lower != "the job" {
			return types.StringPtr(name)
		}
	}
	return nil
}

// detectSeniority 先看职位再看全文，取优先级最高的级别
func detectSeniority(text, title string) *string {
	for _, source := range []string{title, text} {
		if source == "" {
			continue
		}
		for _, s := range seniorityLevels {
			if s.re.MatchString(source) {
				level := s.level
				return &level
			}
		}
	}
	return nil
}

// extractExperienceYears 识别经验年限要求，统一成 "N+" 形式
func extractExperienceYears(text string) *string {
	m := experienceYrsRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n := firstNumberRe.FindString(m[1])
	if n == "" {
		return nil
	}
	n = strings.TrimLeft(n, "0")
	if n == "" {
		n = "0"
	}
	return types.StringPtr(n + "+")
}

// extractRequirements 优先使用章节，没有章节时按行内标签和上下文关键字划分
func (a *JobAnalyzer) extractRequirements(text string) ([]string, []string) {
	sections := a.segmenter.Segment(text)
	required := []string{}
	preferred := []string{}

	reqText, hasReq := sections.Text(JobSectionRequired)
	prefText, hasPref := sections.Text(JobSectionPreferred)
	if hasReq {
		required = appendLines(required, reqText)
	}
	if hasPref {
		preferred = appendLines(preferred, prefText)
	}
	if hasReq || hasPref {
		return required, preferred
	}

	for _, line := range strings.Split(text, "\n") {
		if m := inlineReqRe.FindStringSubmatch(line); m != nil {
			required = appendLines(required, m[1])
			continue
		}
		if m := inlinePrefRe.FindStringSubmatch(line); m != nil {
			preferred = appendLines(preferred, m[1])
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case containsAny(lower, requiredCues):
			required = appendLines(required, line)
		case containsAny(lower, preferredCues):
			preferred = appendLines(preferred, line)
		}
	}
	return required, preferred
}

func appendLines(dst []string, text string) []string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(lineBulletRe.ReplaceAllString(line, ""))
		if line != "" {
			dst = append(dst, line)
		}
	}
	return dst
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
