package parser

import (
	"regexp"
	"strings"

	"resume-match-go/internal/types"
)

var (
	emailRe   = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRe   = regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	urlRe     = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/[^\s|,;()<>"']*)?`)
	addressRe = regexp.MustCompile(`(?im)^\s*(?:address|location|home)\s*[:\-–]\s*(.+?)\s*$`)
)

// 链接平台，按域名子串识别
var linkPlatforms = []struct {
	domain string
	field  func(c *types.ContactInfo) **string
}{
	{"linkedin.com", func(c *types.ContactInfo) **string { return &c.LinkedIn }},
	{"github.com", func(c *types.ContactInfo) **string { return &c.GitHub }},
}

// ExtractEmail 返回全文中第一个邮箱
func ExtractEmail(text string) *string {
	return types.StringPtr(emailRe.FindString(text))
}

// ExtractPhone 返回全文中第一个电话号码，前后紧邻数字的片段会被跳过
func ExtractPhone(text string) *string {
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isDigitByte(text[start-1]) {
			continue
		}
		if end < len(text) && isDigitByte(text[end]) {
			continue
		}
		return types.StringPtr(text[start:end])
	}
	return nil
}

// ExtractLinks 识别 LinkedIn 和 GitHub 链接，每个平台只保留第一个，其它链接被丢弃。邮箱的域名部分不算链接。
func ExtractLinks(text string, contact *types.ContactInfo) {
	for _, loc := range urlRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if (start > 0 && text[start-1] == '@') || (end < len(text) && text[end] == '@') {
			continue
		}
		link := strings.TrimRight(text[start:end], ".")
		lower := strings.ToLower(link)
		for _, p := range linkPlatforms {
			if !strings.Contains(lower, p.domain) {
				continue
			}
			if f := p.field(contact); *f == nil {
				*f = &link
			}
			break
		}
		if contact.LinkedIn != nil && contact.GitHub != nil {
			return
		}
	}
}

// extractAddress 优先使用显式的地址行，其次是头部的 "City, ST"，最后是地点实体
func extractAddress(fullText string, headerLines []string, entities []Entity, minConfidence float64) *string {
	if m := addressRe.FindStringSubmatch(fullText); m != nil {
		if addr := types.StringPtr(m[1]); addr != nil {
			return addr
		}
	}
	for _, line := range headerLines {
		if m := locationRe.FindString(line); m != "" {
			return types.StringPtr(m)
		}
	}
	for _, e := range entities {
		if e.Label == EntityLocation && e.Score >= minConfidence {
			return types.StringPtr(e.Text)
		}
	}
	return nil
}

func isDigitByte(b byte) bool {
	return b >= '0' && b <= '9'
}
