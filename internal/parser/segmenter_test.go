package parser

import (
	"testing"

	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentBasicHeadings(t *testing.T) {
	text := "EXPERIENCE\nDid X\nEDUCATION\nDid Y"
	sections := Segment(text, SectionKeywords{
		"experience": {"experience", "work history"},
		"education":  {"education"},
	})

	exp, ok := sections.Text("experience")
	require.True(t, ok, "应识别出 experience 章节")
	assert.Equal(t, "Did X", exp)

	edu, ok := sections.Text("education")
	require.True(t, ok, "应识别出 education 章节")
	assert.Equal(t, "Did Y", edu)

	assert.Equal(t, []string{"experience", "education"}, sections.Labels())
}

func TestSegmentSpanOffsetsMatchText(t *testing.T) {
	text := "Jane Doe\n\nSummary:\n  Backend engineer.  \n\nSkills -\nGo, SQL\n"
	sections := NewSegmenter(nil).Segment(text)

	for _, span := range sections.Spans {
		assert.Equal(t, text[span.Start:span.End], span.Text, "片段偏移应与文本一致: %s", span.Label)
	}
	summary, ok := sections.Text(types.SectionSummary)
	require.True(t, ok)
	assert.Equal(t, "Backend engineer.", summary)

	skills, ok := sections.Text(types.SectionSkills)
	require.True(t, ok)
	assert.Equal(t, "Go, SQL", skills)
}

func TestSegmentHeadingVariants(t *testing.T) {
	cases := []struct {
		name    string
		heading string
		label   string
	}{
		{"大小写混合", "Work History", types.SectionExperience},
		{"尾部冒号", "EMPLOYMENT:", types.SectionExperience},
		{"尾部破折号和空格", "Technical Skills —   ", types.SectionSkills},
		{"项目符号", "• Education", types.SectionEducation},
		{"编号", "2. Professional Experience", types.SectionExperience},
		{"markdown 标题", "## Projects", types.SectionProjects},
		{"内部多余空白", "Core    Competencies", types.SectionSkills},
		{"复合标题", "Skills & Interests", types.SectionSkills},
		{"Windows 换行", "Summary\r", types.SectionSummary},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := tc.heading + "\nsome content here\n"
			sections := NewSegmenter(nil).Segment(text)
			got, ok := sections.Text(tc.label)
			require.True(t, ok, "标题 %q 应被识别为 %s", tc.heading, tc.label)
			assert.Equal(t, "some content here", got)
		})
	}
}

func TestSegmentLongestKeywordWins(t *testing.T) {
	keywords := SectionKeywords{
		"skills":       {"skills"},
		"tooling":      {"skills & tools"},
		"alphabetic_a": {"tools"},
		"alphabetic_b": {"tools"},
	}
	seg := NewSegmenter(keywords)

	label, ok := seg.classifyLine("Skills & Tools:")
	require.True(t, ok)
	assert.Equal(t, "tooling", label, "整行匹配的较长关键字应优先")

	label, ok = seg.classifyLine("Skills & Hobbies")
	require.True(t, ok)
	assert.Equal(t, "skills", label, "复合标题按第一部分匹配")

	label, ok = seg.classifyLine("Tools")
	require.True(t, ok)
	assert.Equal(t, "alphabetic_a", label, "长度相同时按标签名决定")
}

func TestSegmentProseIsNotHeading(t *testing.T) {
	seg := NewSegmenter(nil)
	for _, line := range []string{
		"5 years experience",
		"experience and passion for building",
		"Managed the education program for new hires",
		"Python / SQL / AWS",
	} {
		_, ok := seg.classifyLine(line)
		assert.False(t, ok, "普通句子不应被识别为标题: %q", line)
	}
}

func TestSegmentEmptySectionIsAbsent(t *testing.T) {
	text := "Summary\n\nSkills\nGo\nSummary\nSecond summary wins because first is empty"
	sections := NewSegmenter(nil).Segment(text)

	summary, ok := sections.Text(types.SectionSummary)
	require.True(t, ok)
	assert.Equal(t, "Second summary wins because first is empty", summary)
	assert.False(t, sections.Has(types.SectionEducation))
}

func TestSegmentFirstOccurrenceWins(t *testing.T) {
	text := "Skills\nGo\nExperience\nACME\nSkills\nRust"
	sections := NewSegmenter(nil).Segment(text)
	skills, _ := sections.Text(types.SectionSkills)
	assert.Equal(t, "Go", skills)
}

func TestSegmentMalformedInput(t *testing.T) {
	seg := NewSegmenter(nil)
	for _, text := range []string{"", "   \n\t\n", "no headings at all", "\n\n\nEducation", "Education\n"} {
		assert.NotPanics(t, func() {
			sections := seg.Segment(text)
			assert.Empty(t, sections.Spans, "输入 %q 不应产生章节", text)
		})
	}
}

func TestSegmentIsDeterministic(t *testing.T) {
	text := "Jane\nExperience\nACME Corp\nEducation\nMIT\nSkills\nGo, Python"
	seg := NewSegmenter(nil)
	assert.Equal(t, seg.Segment(text), seg.Segment(text))
}

func TestMergeSectionKeywords(t *testing.T) {
	base := SectionKeywords{"skills": {"skills"}, "education": {"education"}}
	override := SectionKeywords{"skills": {"toolbox"}}

	merged := MergeSectionKeywords(base, override, false)
	assert.Equal(t, []string{"toolbox"}, merged["skills"])
	assert.Equal(t, []string{"education"}, merged["education"])

	replaced := MergeSectionKeywords(base, override, true)
	assert.Len(t, replaced, 1)

	override["skills"][0] = "changed"
	assert.Equal(t, "toolbox", merged["skills"][0], "合并结果不应与输入共享底层数组")
}

func TestSegmentJobPosting(t *testing.T) {
	text := "Senior Go Engineer\n\nResponsibilities:\nBuild services\n\nRequirements\n5+ years of Go\n\nNice to have\nKubernetes"
	sections := NewSegmenter(DefaultJobSectionKeywords()).Segment(text)

	req, ok := sections.Text(JobSectionRequired)
	require.True(t, ok)
	assert.Equal(t, "5+ years of Go", req)

	pref, ok := sections.Text(JobSectionPreferred)
	require.True(t, ok)
	assert.Equal(t, "Kubernetes", pref)
}
