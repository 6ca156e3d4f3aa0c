package constants

// MinIO 对象键格式
const (
	// DocumentObjectKey 原始简历文档，格式: resume/{analysisID}/original{ext}
	DocumentObjectKey = "resume/%s/original%s"
	// ReportJSONObjectKey 分析报告，格式: report/{analysisID}/report.json
	ReportJSONObjectKey = "report/%s/report.json"
	// ReportDocxObjectKey 渲染后的简历，格式: report/{analysisID}/resume.docx
	ReportDocxObjectKey = "report/%s/resume.docx"
)

// 分析任务状态
const (
	AnalysisStatusPending   = "PENDING"
	AnalysisStatusCompleted = "COMPLETED"
	AnalysisStatusFailed    = "FAILED"
)

// 发件箱事件类型
const (
	EventAnalysisCompleted = "analysis.completed"
)
