package parser

import (
	"context"
	"regexp"
	"strings"

	"resume-match-go/internal/types"
)

var (
	degreeStartRe = regexp.MustCompile(`^\s*(?:B\.?S|M\.?S|B\.?A|M\.?A|Ph\.?D|MBA|Bachelor|Master|Doctor|Associate|Diploma|Certificate)\b`)
	degreeRe      = regexp.MustCompile(`(?i)\b(?:B\.?S\.?c?|M\.?S\.?c?|B\.?A|M\.?A|Ph\.?D|MBA|B\.?Eng|M\.?Eng|Bachelor|Master|Doctor(?:ate)?|Associate|Diploma|Certificate)\b`)
	jobTitleRe    = regexp.MustCompile(`^[A-Z][a-zA-Z\s.,'/-]*?(?:Engineer|Developer|Manager|Analyst|Specialist|Lead|Architect|Consultant|Designer|Scientist|Director|Intern|Researcher)\b`)
	roleAtRe      = regexp.MustCompile(`^\s*([A-Z][\w\s,.'/-]+?)\s+(?:at|@)\s+([A-Z][\w\s&,.'-]+?)\s*(?:[|(,]|$)`)
	roleStartRe   = regexp.MustCompile(`^\s*[A-Z][\w\s,.'/-]+(?:\s*\||\s*@|\s+at\s+)\s*[A-Z]`)
	dateStartRe   = regexp.MustCompile(`(?i)^\s*(?:` + monthPattern + `|(?:19|20)\d{2})\s*(?:\d{4}\s*)?(?:-|–|—)`)
)

// 学校名称关键字
var institutionKeywords = []string{"university", "college", "institute", "school", "academy"}

const (
	minEducationEntryLen  = 10
	minExperienceEntryLen = 15
	entryHeaderLines      = 3
)

// splitEntries 按空行拆分，isStart 命中的行也会开始一个新条目
func splitEntries(section string, isStart func(line string) bool, minLen int) []string {
	var entries []string
	var current []string
	flush := func() {
		entry := strings.TrimSpace(strings.Join(current, "\n"))
		if len(entry) >= minLen {
			entries = append(entries, entry)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(section, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(current) > 0 && isStart(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return entries
}

func isEducationStart(line string) bool {
	return degreeStartRe.MatchString(line)
}

func isExperienceStart(line string) bool {
	return roleStartRe.MatchString(line) || dateStartRe.MatchString(line)
}

// pipeFields 拆分 "A | B | C" 形式的行
func pipeFields(line string) []string {
	var out []string
	for _, f := range strings.Split(line, "|") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func hasInstitutionKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range institutionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func entryDates(entry string) *string {
	d, _ := FindRelevantDate(entry)
	return types.StringPtr(d)
}

// entityLookup 按需识别条目中的实体，识别器不可用时返回空
type entityLookup func(ctx context.Context, text string) []Entity

// buildEducationEntries 拆分教育经历，学位取首行中含学位关键字的字段，学校取含学校关键字的字段或组织实体
func buildEducationEntries(ctx context.Context, section string, lookup entityLookup, minConfidence float64) []types.ResumeEntry {
	entries := []types.ResumeEntry{}
	for _, text := range splitEntries(section, isEducationStart, minEducationEntryLen) {
		entry := types.ResumeEntry{Details: text, Dates: entryDates(text)}
		head := firstLines(text, entryHeaderLines)

		for _, line := range strings.Split(head, "\n") {
			for _, f := range pipeFields(line) {
				if entry.Title == nil && degreeRe.MatchString(f) {
					entry.Title = types.StringPtr(stripDates(f))
				}
				if entry.Organization == nil && hasInstitutionKeyword(f) && !degreeRe.MatchString(f) {
					entry.Organization = types.StringPtr(stripLocationSuffix(f))
				}
			}
		}

		if entry.Organization == nil {
			for _, e := range lookup(ctx, head) {
				if e.Label == EntityOrganization && e.Score >= minConfidence && hasInstitutionKeyword(e.Text) {
					entry.Organization = types.StringPtr(e.Text)
					break
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// buildExperienceEntries 拆分工作经历，职位和公司来自 "Title | Company" 或 "Title at Company"，
// 否则退回到职位正则和组织实体
func buildExperienceEntries(ctx context.Context, section string, lookup entityLookup, minConfidence float64) []types.ResumeEntry {
	entries := []types.ResumeEntry{}
	for _, text := range splitEntries(section, isExperienceStart, minExperienceEntryLen) {
		entry := types.ResumeEntry{Details: text, Dates: entryDates(text)}
		firstLine := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])

		if fields := pipeFields(firstLine); len(fields) >= 2 {
			entry.Title = types.StringPtr(stripDates(fields[0]))
			entry.Organization = types.StringPtr(stripDates(fields[1]))
		} else if m := roleAtRe.FindStringSubmatch(firstLine); m != nil {
			entry.Title = types.StringPtr(m[1])
			entry.Organization = types.StringPtr(m[2])
		}

		if entry.Title == nil {
			if m := jobTitleRe.FindString(firstLine); m != "" {
				entry.Title = types.StringPtr(m)
			}
		}

		if entry.Organization == nil || entry.Title == nil {
			for _, e := range lookup(ctx, firstLines(text, entryHeaderLines)) {
				if e.Score < minConfidence {
					continue
				}
				if entry.Organization == nil && e.Label == EntityOrganization {
					entry.Organization = types.StringPtr(e.Text)
				}
				if entry.Title == nil && e.Label == EntityMisc {
					entry.Title = types.StringPtr(e.Text)
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// stripDates 去掉字段中的日期片段，例如 "Acme Corp (2019 - 2021)"
func stripDates(s string) string {
	for _, re := range datePatterns[:3] {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "()")
	return strings.TrimRight(strings.TrimSpace(s), ",-–— ")
}

// stripLocationSuffix 去掉学校名称后面的城市，例如 "Stanford University, Stanford, CA"
func stripLocationSuffix(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		if hasInstitutionKeyword(p) {
			return strings.TrimSpace(strings.Join(parts[:i+1], ","))
		}
	}
	return strings.TrimSpace(s)
}
