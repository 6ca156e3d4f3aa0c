package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"resume-match-go/internal/types"

	"github.com/rs/zerolog"
)

// SectionKeywords 章节标签到标题关键字的映射
type SectionKeywords map[string][]string

// DefaultSectionKeywords 返回简历默认的章节关键字映射
func DefaultSectionKeywords() SectionKeywords {
	return SectionKeywords{
		types.SectionSummary:        {"summary", "objective", "profile", "about me", "professional profile", "personal statement", "professional summary", "career objective"},
		types.SectionSkills:         {"skills", "technical skills", "technologies", "proficiencies", "core competencies", "technical proficiencies", "key skills"},
		types.SectionEducation:      {"education", "academic background", "qualifications", "academic training", "education and training"},
		types.SectionExperience:     {"experience", "work experience", "professional experience", "employment history", "career history", "work history", "employment"},
		types.SectionProjects:       {"projects", "personal projects", "key projects"},
		types.SectionContact:        {"contact", "contact information", "personal details"},
		types.SectionAwards:         {"awards", "honors", "honors and awards"},
		types.SectionCertifications: {"certifications", "certificates", "licenses and certifications"},
		types.SectionPublications:   {"publications"},
		types.SectionReferences:     {"references"},
	}
}

// 岗位描述的章节标签
const (
	JobSectionResponsibilities = "responsibilities"
	JobSectionRequired         = "required"
	JobSectionPreferred        = "preferred"
	JobSectionAbout            = "about"
	JobSectionBenefits         = "benefits"
)

// DefaultJobSectionKeywords 返回岗位描述默认的章节关键字映射
func DefaultJobSectionKeywords() SectionKeywords {
	return SectionKeywords{
		JobSectionResponsibilities: {"responsibilities", "key responsibilities", "what you'll do", "what you will do", "the role", "duties"},
		JobSectionRequired:         {"requirements", "required qualifications", "minimum qualifications", "basic qualifications", "qualifications", "what you'll need", "what we're looking for", "must have", "required skills"},
		JobSectionPreferred:        {"preferred qualifications", "nice to have", "bonus points", "preferred skills", "nice-to-have", "pluses"},
		JobSectionAbout:            {"about us", "about the company", "who we are"},
		JobSectionBenefits:         {"benefits", "perks", "what we offer", "compensation"},
	}
}

// MergeSectionKeywords 用 override 中的标签覆盖 base，replace 为 true 时只使用 override
func MergeSectionKeywords(base, override SectionKeywords, replace bool) SectionKeywords {
	out := SectionKeywords{}
	if !replace {
		for label, kws := range base {
			out[label] = append([]string(nil), kws...)
		}
	}
	for label, kws := range override {
		out[label] = append([]string(nil), kws...)
	}
	return out
}

var (
	leadingMarkerRe  = regexp.MustCompile(`^[\s\-*•·▪●◦#>=_~]*(?:\(?\d{1,2}[.)]\s*|[ivx]{1,4}[.)]\s+)?[\s\-*•·▪●◦#>=_~]*`)
	trailingMarkerRe = regexp.MustCompile(`[\s:\-–—.|*#=_~]+$`)
	compoundSplitRe  = regexp.MustCompile(`\s*(?:&|/|\band\b)\s*`)
)

// 复合标题（例如 "Skills & Interests"）的每个部分最多包含的词数
const maxCompoundPartWords = 3

type headingKeyword struct {
	label   string
	keyword string
}

// Segmenter 基于标题行的简历分段器，创建后只读，可并发使用
type Segmenter struct {
	index  map[string][]headingKeyword // 规范化关键字 -> 候选标签
	logger zerolog.Logger
}

// SegmenterOption 分段器选项
type SegmenterOption func(*Segmenter)

// WithSegmenterLogger 设置分段器日志
func WithSegmenterLogger(l zerolog.Logger) SegmenterOption {
	return func(s *Segmenter) {
		s.logger = l
	}
}

// NewSegmenter 创建分段器，keywords 为空时使用默认映射
func NewSegmenter(keywords SectionKeywords, opts ...SegmenterOption) *Segmenter {
	if len(keywords) == 0 {
		keywords = DefaultSectionKeywords()
	}
	s := &Segmenter{
		index:  make(map[string][]headingKeyword),
		logger: zerolog.Nop(),
	}
	for label, kws := range keywords {
		for _, kw := range kws {
			norm := normalizeHeading(kw)
			if norm == "" {
				continue
			}
			s.index[norm] = append(s.index[norm], headingKeyword{label: label, keyword: norm})
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment 使用给定关键字映射对文本分段
func Segment(fullText string, keywords SectionKeywords) types.SectionMap {
	return NewSegmenter(keywords).Segment(fullText)
}

type headingLine struct {
	label        string
	heading      string
	lineStart    int // 标题行起始偏移
	contentStart int // 标题行之后的偏移
}

// Segment 对文本做一次线性扫描，输出按出现顺序排列的章节片段。
// 章节内容从标题行之后开始，到下一个任意标签的标题行或文本末尾结束。
// 同一标签多次出现时取第一个非空片段，没有内容的章节视为缺失。
func (s *Segmenter) Segment(fullText string) types.SectionMap {
	if strings.TrimSpace(fullText) == "" {
		return types.NewSectionMap(nil)
	}

	var headings []headingLine
	offset := 0
	for offset <= len(fullText) {
		end := strings.IndexByte(fullText[offset:], '\n')
		next := len(fullText) + 1
		lineEnd := len(fullText)
		if end >= 0 {
			lineEnd = offset + end
			next = lineEnd + 1
		}
		line := strings.TrimRight(fullText[offset:lineEnd], "\r")
		if label, ok := s.classifyLine(line); ok {
			contentStart := next
			if contentStart > len(fullText) {
				contentStart = len(fullText)
			}
			headings = append(headings, headingLine{
				label:        label,
				heading:      strings.TrimSpace(line),
				lineStart:    offset,
				contentStart: contentStart,
			})
		}
		offset = next
	}

	spans := make([]types.SectionSpan, 0, len(headings))
	seen := make(map[string]bool, len(headings))
	for i, h := range headings {
		if seen[h.label] {
			continue
		}
		end := len(fullText)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		start, stop := trimSpan(fullText, h.contentStart, end)
		if start >= stop {
			continue
		}
		seen[h.label] = true
		spans = append(spans, types.SectionSpan{
			Label:   h.label,
			Heading: h.heading,
			Start:   start,
			End:     stop,
			Text:    fullText[start:stop],
		})
	}

	s.logger.Debug().
		Int("headings", len(headings)).
		Strs("sections", types.NewSectionMap(spans).Labels()).
		Msg("文本分段完成")
	return types.NewSectionMap(spans)
}

// classifyLine 判断一行是否为标题行。整行匹配优先，其次是复合标题的第一部分，
// 多个关键字同时匹配时取最长的关键字，长度相同按标签名排序。
func (s *Segmenter) classifyLine(line string) (string, bool) {
	norm := normalizeHeading(line)
	if norm == "" || len(norm) > 80 {
		return "", false
	}

	candidates := append([]headingKeyword(nil), s.index[norm]...)
	if first, ok := compoundHead(line, norm); ok {
		candidates = append(candidates, s.index[first]...)
	}
	if len(candidates) == 0 {
		return "", false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].keyword) != len(candidates[j].keyword) {
			return len(candidates[i].keyword) > len(candidates[j].keyword)
		}
		return candidates[i].label < candidates[j].label
	})
	return candidates[0].label, true
}

// compoundHead 处理 "Skills & Interests" 这类标题，返回第一部分。
// 每一部分都必须很短且首字母大写，避免把普通句子误判为标题。
func compoundHead(raw, norm string) (string, bool) {
	parts := compoundSplitRe.Split(norm, -1)
	if len(parts) < 2 {
		return "", false
	}
	for _, p := range parts {
		if p == "" || len(strings.Fields(p)) > maxCompoundPartWords {
			return "", false
		}
	}
	rawParts := compoundSplitRe.Split(strings.TrimSpace(leadingMarkerRe.ReplaceAllString(raw, "")), -1)
	for _, p := range rawParts {
		r := firstLetter(p)
		if r == 0 || !unicode.IsUpper(r) {
			return "", false
		}
	}
	return parts[0], true
}

func firstLetter(s string) rune {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return r
		}
	}
	return 0
}

// normalizeHeading 小写、合并空白，去掉行首的项目符号/编号和行尾的标点
func normalizeHeading(line string) string {
	line = strings.ToLower(strings.TrimSpace(line))
	line = leadingMarkerRe.ReplaceAllString(line, "")
	line = trailingMarkerRe.ReplaceAllString(line, "")
	return strings.Join(strings.Fields(line), " ")
}

// trimSpan 去除片段两端的空白，返回新的偏移
func trimSpan(text string, start, end int) (int, int) {
	if end > len(text) {
		end = len(text)
	}
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	return start, end
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}
