package parser

import "regexp"

const monthPattern = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`

const (
	rangeSep   = `\s*(?:-|–|—|to|until)\s*`
	openEnded  = `present|current|now|today`
	monthNum   = `(?:0?[1-9]|1[0-2])`
	fourDigitY = `(?:19|20)\d{2}`
)

// datePatterns 按从具体到宽泛的顺序排列，第一个命中的模式决定结果
var datePatterns = []*regexp.Regexp{
	// Jan 2019 - Present, June 2015 – Dec 2018
	regexp.MustCompile(`(?i)\b` + monthPattern + `\s+` + fourDigitY + rangeSep + `(?:` + monthPattern + `\s+` + fourDigitY + `|` + openEnded + `)\b`),
	// 01/2019 - 12/2020
	regexp.MustCompile(`(?i)\b` + monthNum + `/` + fourDigitY + rangeSep + `(?:` + monthNum + `/` + fourDigitY + `|` + openEnded + `)\b`),
	// 2011 - 2015, 2019 to present
	regexp.MustCompile(`(?i)\b` + fourDigitY + rangeSep + `(?:` + fourDigitY + `|` + openEnded + `)\b`),
	// 2020-01-15
	regexp.MustCompile(`\b` + fourDigitY + `-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])\b`),
	// March 2020
	regexp.MustCompile(`(?i)\b` + monthPattern + `\s+` + fourDigitY + `\b`),
	// 03/2020
	regexp.MustCompile(`\b` + monthNum + `/` + fourDigitY + `\b`),
	// 2020
	regexp.MustCompile(`\b` + fourDigitY + `\b`),
}

// FindRelevantDate 返回文本中第一个命中模式的第一个匹配，不做格式归一化
func FindRelevantDate(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}
