package constants

import "time"

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// AnalysisModulePrefix 分析任务模块
	AnalysisModulePrefix = "analysis"

	// EntityKeywords 关键词实体
	EntityKeywords = "keywords"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyJobKeywords 岗位关键词缓存 (STRING, JSON)
	// 格式: app:job:keywords:{jobTextUUID}
	KeyJobKeywords = AppPrefix + ":" + JobModulePrefix + ":" + EntityKeywords + ":%s"

	// KeyAnalysisLock 分析任务去重锁 (STRING)
	// 格式: app:analysis:lock:{analysisID}
	KeyAnalysisLock = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityLock + ":%s"
)

const (
	// DefaultKeywordCacheTTL 岗位关键词缓存默认有效期
	DefaultKeywordCacheTTL = 24 * time.Hour
	// AnalysisLockTTL 单个分析任务的处理锁有效期
	AnalysisLockTTL = 10 * time.Minute
)
