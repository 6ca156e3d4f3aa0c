package models

import (
	"encoding/json"
	"fmt"
	"time"

	"resume-match-go/internal/types"

	"gorm.io/datatypes"
)

// AnalysisRecord 一次简历与岗位匹配分析的持久化记录
type AnalysisRecord struct {
	AnalysisID         string         `gorm:"type:char(36);primaryKey"`
	ResumeFileName     string         `gorm:"type:varchar(255)"`
	ResumeObjectKey    string         `gorm:"type:varchar(1024)"`
	CandidateName      string         `gorm:"type:varchar(255)"`
	CandidateEmail     string         `gorm:"type:varchar(255);index:idx_ar_candidate_email"`
	JobTitle           string         `gorm:"type:varchar(255)"`
	JobCompany         string         `gorm:"type:varchar(255)"`
	JobSourceURL       string         `gorm:"type:varchar(2048)"`
	JobTextID          string         `gorm:"type:char(36);index:idx_ar_job_text_id"` // 岗位文本的 UUIDv5
	MatchScore         int            `gorm:"type:int;index:idx_ar_match_score"`
	MatchStrength      string         `gorm:"type:varchar(50)"`
	MatchingSkillsJSON datatypes.JSON `gorm:"type:json"`
	MissingSkillsJSON  datatypes.JSON `gorm:"type:json"`
	ResumeJSON         datatypes.JSON `gorm:"type:json"`
	JobProfileJSON     datatypes.JSON `gorm:"type:json"`
	Degraded           bool           `gorm:"default:false"`
	ReportObjectKey    string         `gorm:"type:varchar(1024)"`
	RenderedObjectKey  string         `gorm:"type:varchar(1024)"`
	Status             string         `gorm:"type:varchar(50);default:'PENDING';index:idx_ar_status"`
	ErrorMessage       string         `gorm:"type:text"`
	CreatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt          time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// AnalysisSource 报告本身不包含的来源信息
type AnalysisSource struct {
	ResumeFileName  string
	ResumeObjectKey string
	JobSourceURL    string
	JobTextID       string
}

// NewAnalysisRecord 由分析报告构造数据库记录，状态为 status
func NewAnalysisRecord(report types.AnalysisReport, src AnalysisSource, status string) (*AnalysisRecord, error) {
	matching, err := ToJSON(report.Match.MatchingSkills)
	if err != nil {
		return nil, err
	}
	missing, err := ToJSON(report.Match.MissingSkills)
	if err != nil {
		return nil, err
	}
	resume, err := ToJSON(report.Resume)
	if err != nil {
		return nil, err
	}
	job, err := ToJSON(report.Job)
	if err != nil {
		return nil, err
	}

	return &AnalysisRecord{
		AnalysisID:         report.AnalysisID,
		ResumeFileName:     src.ResumeFileName,
		ResumeObjectKey:    src.ResumeObjectKey,
		CandidateName:      types.Deref(report.Resume.Name),
		CandidateEmail:     types.Deref(report.Resume.Contact.Email),
		JobTitle:           types.Deref(report.Job.Title),
		JobCompany:         types.Deref(report.Job.Company),
		JobSourceURL:       src.JobSourceURL,
		JobTextID:          src.JobTextID,
		MatchScore:         report.Match.MatchScore,
		MatchStrength:      string(report.Match.Strength),
		MatchingSkillsJSON: matching,
		MissingSkillsJSON:  missing,
		ResumeJSON:         resume,
		JobProfileJSON:     job,
		Degraded:           report.Degraded,
		Status:             status,
		CreatedAt:          report.CreatedAt,
	}, nil
}

// MatchingSkills 解析匹配技能列表
func (r *AnalysisRecord) MatchingSkills() ([]string, error) {
	return stringsFromJSON(r.MatchingSkillsJSON)
}

// MissingSkills 解析缺失技能列表
func (r *AnalysisRecord) MissingSkills() ([]string, error) {
	return stringsFromJSON(r.MissingSkillsJSON)
}

// ToJSON 把任意值序列化为 datatypes.JSON
func ToJSON(v interface{}) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化JSON字段失败: %w", err)
	}
	return datatypes.JSON(data), nil
}

func stringsFromJSON(data datatypes.JSON) ([]string, error) {
	out := []string{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("解析JSON字段失败: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
