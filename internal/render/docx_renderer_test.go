package render

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paragraph(text string) string {
	return `<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func buildTemplate(t *testing.T, placeholders ...string) []byte {
	t.Helper()
	body := ""
	for _, p := range placeholders {
		body += paragraph("{" + p + "}")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`,
		"word/document.xml":   `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func documentXML(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(content)
	}
	t.Fatal("输出中没有 word/document.xml")
	return ""
}

func sampleResume() types.StructuredResume {
	r := types.NewStructuredResume()
	r.Name = types.StringPtr("Jane Doe")
	r.Contact.Email = types.StringPtr("jane@example.com")
	r.Skills = []string{"Go", "Kafka"}
	return r
}

func TestDocxRendererRender(t *testing.T) {
	renderer, err := NewDocxRendererFromBytes(buildTemplate(t, "name", "email", "skills", "summary"))
	require.NoError(t, err)

	out, err := renderer.Render(context.Background(), sampleResume())
	require.NoError(t, err)

	xml := documentXML(t, out)
	assert.Contains(t, xml, "Jane Doe")
	assert.Contains(t, xml, "jane@example.com")
	assert.Contains(t, xml, "Go, Kafka")
	assert.NotContains(t, xml, "{name}")
	assert.NotContains(t, xml, "{summary}", "缺失字段替换为空")
}

func TestDocxRendererRenderReport(t *testing.T) {
	renderer, err := NewDocxRendererFromBytes(buildTemplate(t, "name", "match_score", "match_strength", "missing_skills"))
	require.NoError(t, err)

	report := types.AnalysisReport{
		Resume: sampleResume(),
		Job:    types.NewJobProfile(),
		Match: types.MatchResult{
			MatchScore:    67,
			Strength:      types.StrengthGood,
			MissingSkills: []string{"aws"},
		},
	}
	out, err := renderer.RenderReport(context.Background(), report)
	require.NoError(t, err)

	xml := documentXML(t, out)
	assert.Contains(t, xml, "67")
	assert.Contains(t, xml, "Good match")
	assert.Contains(t, xml, "aws")
}

func TestNewDocxRendererFromFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "render_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "template.docx")
	require.NoError(t, os.WriteFile(path, buildTemplate(t, "name"), 0644))

	renderer, err := NewDocxRenderer(path)
	require.NoError(t, err)
	out, err := renderer.Render(context.Background(), sampleResume())
	require.NoError(t, err)
	assert.Contains(t, documentXML(t, out), "Jane Doe")
}

func TestNewDocxRendererErrors(t *testing.T) {
	_, err := NewDocxRenderer("")
	assert.ErrorIs(t, err, ErrTemplateRequired)

	_, err = NewDocxRenderer(filepath.Join(os.TempDir(), "does-not-exist.docx"))
	assert.Error(t, err)

	_, err = NewDocxRendererFromBytes([]byte("not a zip"))
	assert.Error(t, err)
}

func TestRenderCanceledContext(t *testing.T) {
	renderer, err := NewDocxRendererFromBytes(buildTemplate(t, "name"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = renderer.Render(ctx, sampleResume())
	assert.ErrorIs(t, err, context.Canceled)
}
