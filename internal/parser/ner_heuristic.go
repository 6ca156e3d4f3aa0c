package parser

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

var (
	personTokenRe = regexp.MustCompile(`^(?:[A-Z][a-z]+(?:[-'][A-Z]?[a-z]+)*|[A-Z]\.|[A-Z]{2,}(?:[-'][A-Z]+)*)$`)
	locationRe    = regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+){0,2}),\s*([A-Z]{2})\b`)
	orgSuffixRe   = regexp.MustCompile(`\b((?:[A-Z][\w&.'-]*\s+){0,4}(?:Inc|Ltd|LLC|Corp|Corporation|Company|Technologies|Labs|Group|GmbH|Systems|Solutions|University|College|Institute|School|Academy)\b\.?)`)
	orgPrefixRe   = regexp.MustCompile(`\b((?:University|Institute|College|School|Academy) of(?:\s+[A-Z][\w&.'-]*){1,4})`)
	honorificRe   = regexp.MustCompile(`^(?i:dr|mr|mrs|ms|prof)\.?\s+`)
	fieldSplitRe  = regexp.MustCompile(`\s*[|•·▪●◦]\s*|\s{3,}|\t+`)
)

// 这些词出现在候选行中时，该行不会被当作人名
var nonNameWords = map[string]bool{
	"resume": true, "curriculum": true, "vitae": true, "cv": true,
	"engineer": true, "developer": true, "manager": true, "analyst": true,
	"designer": true, "consultant": true, "architect": true, "scientist": true,
	"specialist": true, "intern": true, "lead": true, "senior": true, "junior": true,
	"university": true, "college": true, "institute": true, "school": true,
	"inc": true, "ltd": true, "llc": true, "corp": true, "street": true, "road": true,
	"summary": true, "objective": true, "profile": true, "skills": true,
	"education": true, "experience": true, "projects": true, "contact": true,
}

// HeuristicRecognizer 基于大小写和格式规则的实体识别器，不依赖外部模型
type HeuristicRecognizer struct{}

// NewHeuristicRecognizer 创建规则识别器
func NewHeuristicRecognizer() *HeuristicRecognizer {
	return &HeuristicRecognizer{}
}

// Recognize 逐行识别人名、地点和组织
func (h *HeuristicRecognizer) Recognize(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entities []Entity
	seen := make(map[string]bool)
	add := func(e Entity) {
		key := string(e.Label) + "|" + strings.ToLower(e.Text)
		if e.Text == "" || seen[key] {
			return
		}
		seen[key] = true
		entities = append(entities, e)
	}

	for _, line := range strings.Split(text, "\n") {
		for _, field := range fieldSplitRe.Split(strings.TrimSpace(line), -1) {
			if name, score, ok := personCandidate(field); ok {
				add(Entity{Text: name, Label: EntityPerson, Score: score})
			}
		}
		for _, m := range locationRe.FindAllStringSubmatch(line, -1) {
			add(Entity{Text: m[0], Label: EntityLocation, Score: 0.7})
		}
		for _, m := range orgPrefixRe.FindAllStringSubmatch(line, -1) {
			add(Entity{Text: strings.TrimSpace(m[1]), Label: EntityOrganization, Score: 0.75})
		}
		for _, m := range orgSuffixRe.FindAllStringSubmatch(line, -1) {
			add(Entity{Text: strings.TrimSpace(m[1]), Label: EntityOrganization, Score: 0.7})
		}
	}
	return entities, nil
}

// personCandidate 判断一个字段是否像人名：2 到 4 个首字母大写的词，不含数字或符号
func personCandidate(field string) (string, float64, bool) {
	field = strings.TrimSpace(field)
	if field == "" || len(field) > 60 || strings.ContainsAny(field, "@/:,;()0123456789") {
		return "", 0, false
	}
	field = honorificRe.ReplaceAllString(field, "")

	tokens := strings.Fields(field)
	if len(tokens) < 2 || len(tokens) > 4 {
		return "", 0, false
	}
	allCaps := true
	for _, tok := range tokens {
		if !personTokenRe.MatchString(tok) || nonNameWords[strings.ToLower(strings.Trim(tok, "."))] {
			return "", 0, false
		}
		if strings.IndexFunc(tok, unicode.IsLower) >= 0 {
			allCaps = false
		}
	}
	if allCaps {
		return strings.Join(tokens, " "), 0.6, true
	}
	return strings.Join(tokens, " "), 0.85, true
}

var _ EntityRecognizer = (*HeuristicRecognizer)(nil)
