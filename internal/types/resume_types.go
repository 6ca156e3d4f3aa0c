package types

import "strings"

// 章节标签，默认关键字映射中使用的标签名
const (
	SectionSummary        = "summary"
	SectionSkills         = "skills"
	SectionEducation      = "education"
	SectionExperience     = "experience"
	SectionProjects       = "projects"
	SectionContact        = "contact"
	SectionAwards         = "awards"
	SectionCertifications = "certifications"
	SectionPublications   = "publications"
	SectionReferences     = "references"
)

// DocumentFormat 原始文档格式
type DocumentFormat string

const (
	FormatPDF     DocumentFormat = "pdf"
	FormatDOCX    DocumentFormat = "docx"
	FormatText    DocumentFormat = "text"
	FormatUnknown DocumentFormat = "unknown"
)

// FormatFromFileName 根据文件扩展名推断文档格式
func FormatFromFileName(fileName string) DocumentFormat {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 || idx == len(fileName)-1 {
		return FormatUnknown
	}
	switch strings.ToLower(fileName[idx+1:]) {
	case "pdf":
		return FormatPDF
	case "docx":
		return FormatDOCX
	case "txt", "text", "md":
		return FormatText
	default:
		return FormatUnknown
	}
}

// RawDocument 原始文档负载，只被文本提取器消费一次
type RawDocument struct {
	FileName string         `json:"file_name"`
	Format   DocumentFormat `json:"format"`
	Data     []byte         `json:"-"`
}

// SectionSpan 文档中一个带标签的连续片段
type SectionSpan struct {
	Label   string `json:"label"`   // 章节标签，例如 experience
	Heading string `json:"heading"` // 原文中的标题行
	Start   int    `json:"start"`   // 内容起始字节偏移
	End     int    `json:"end"`     // 内容结束字节偏移（不含）
	Text    string `json:"text"`    // 等于 full_text[Start:End]
}

// SectionMap 分段结果，按出现顺序保存各章节片段。创建后不再修改。
type SectionMap struct {
	Spans []SectionSpan `json:"spans"`
}

// NewSectionMap 由有序片段构造分段结果
func NewSectionMap(spans []SectionSpan) SectionMap {
	if spans == nil {
		spans = []SectionSpan{}
	}
	return SectionMap{Spans: spans}
}

// Span 按标签查找片段
func (m SectionMap) Span(label string) (SectionSpan, bool) {
	for _, s := range m.Spans {
		if s.Label == label {
			return s, true
		}
	}
	return SectionSpan{}, false
}

// Text 返回章节文本，章节缺失时第二个返回值为 false
func (m SectionMap) Text(label string) (string, bool) {
	s, ok := m.Span(label)
	return s.Text, ok
}

// Has 判断章节是否存在
func (m SectionMap) Has(label string) bool {
	_, ok := m.Span(label)
	return ok
}

// Labels 按出现顺序返回所有章节标签
func (m SectionMap) Labels() []string {
	labels := make([]string, 0, len(m.Spans))
	for _, s := range m.Spans {
		labels = append(labels, s.Label)
	}
	return labels
}

// AsMap 转换为 label -> text 的映射，便于序列化展示
func (m SectionMap) AsMap() map[string]string {
	out := make(map[string]string, len(m.Spans))
	for _, s := range m.Spans {
		out[s.Label] = s.Text
	}
	return out
}

// ContactInfo 联系方式，每个字段都是可选的
type ContactInfo struct {
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	LinkedIn *string `json:"linkedin"`
	GitHub   *string `json:"github"`
	Address  *string `json:"address"`
}

// ResumeEntry 教育或工作经历中的一条记录
type ResumeEntry struct {
	Title        *string `json:"title"`        // 职位或学位
	Organization *string `json:"organization"` // 公司或学校
	Dates        *string `json:"dates"`
	Details      string  `json:"details"` // 条目原文
}

// StructuredResume 固定结构的简历记录。所有字段总是存在，缺失的值为 null 或空集合。
type StructuredResume struct {
	Name              *string           `json:"name"`
	Contact           ContactInfo       `json:"contact_info"`
	Summary           *string           `json:"summary"`
	Skills            []string          `json:"skills"`
	Education         *string           `json:"education"`
	Experience        *string           `json:"experience"`
	EducationEntries  []ResumeEntry     `json:"education_entries"`
	ExperienceEntries []ResumeEntry     `json:"experience_entries"`
	Projects          *string           `json:"projects"`
	SectionDates      map[string]string `json:"section_dates"`
}

// NewStructuredResume 返回一个所有字段均为空的简历记录
func NewStructuredResume() StructuredResume {
	return StructuredResume{
		Skills:            []string{},
		EducationEntries:  []ResumeEntry{},
		ExperienceEntries: []ResumeEntry{},
		SectionDates:      map[string]string{},
	}
}

// IsEmpty 判断记录是否没有任何提取结果
func (r StructuredResume) IsEmpty() bool {
	c := r.Contact
	return r.Name == nil && r.Summary == nil && len(r.Skills) == 0 &&
		r.Education == nil && r.Experience == nil && r.Projects == nil &&
		c.Email == nil && c.Phone == nil && c.LinkedIn == nil && c.GitHub == nil && c.Address == nil
}

// StringPtr 返回字符串指针，空白字符串返回 nil
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref 安全解引用
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
