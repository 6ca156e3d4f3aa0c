package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	skillBulletRe   = regexp.MustCompile(`^[\s\-*•·▪●◦>]+`)
	skillCategoryRe = regexp.MustCompile(`^([A-Za-z][\w/&+.' -]{0,39}):\s*`)
)

// 单个技能条目的最大长度，超过的通常是一句描述而不是技能
const maxSkillRunes = 60

// SplitSkills 把技能章节拆成去重后的技能列表。
// 分隔符为逗号、分号、换行、竖线和项目符号，括号内的分隔符不拆分；
// 行首的 "Category:" 标签会被去掉；按不区分大小写去重，保留第一次出现时的写法和顺序。
func SplitSkills(section string) []string {
	skills := []string{}
	seen := make(map[string]bool)

	for _, line := range strings.Split(section, "\n") {
		line = skillBulletRe.ReplaceAllString(line, "")
		if m := skillCategoryRe.FindStringSubmatchIndex(line); m != nil {
			// 只有冒号后面还有内容时才把前缀当作分类
			if strings.TrimSpace(line[m[1]:]) != "" {
				line = line[m[1]:]
			}
		}

		for _, item := range splitOutsideParens(line) {
			item = strings.TrimSpace(skillBulletRe.ReplaceAllString(item, ""))
			item = strings.TrimRight(item, ".:")
			item = strings.Join(strings.Fields(item), " ")
			if item == "" || utf8.RuneCountInString(item) > maxSkillRunes {
				continue
			}
			key := strings.ToLower(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			skills = append(skills, item)
		}
	}
	return skills
}

func isSkillDelimiter(r rune) bool {
	switch r {
	case ',', ';', '|', '•', '·', '▪', '●', '◦', '\t':
		return true
	}
	return false
}

// splitOutsideParens 按分隔符切分，但忽略括号内部的分隔符
func splitOutsideParens(line string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range line {
		switch {
		case r == '(' || r == '[' || r == '{':
			depth++
		case (r == ')' || r == ']' || r == '}') && depth > 0:
			depth--
		case depth == 0 && isSkillDelimiter(r):
			parts = append(parts, line[start:i])
			start = i + utf8.RuneLen(r)
		}
	}
	return append(parts, line[start:])
}
