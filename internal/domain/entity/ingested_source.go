package entity

import "time"

// IngestedSource 已导入来源登记，(source, doc_id) 唯一
type IngestedSource struct {
	ID         int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt  time.Time  `json:"ingested_utc" gorm:"column:ingested_utc;not null"`
	SourceType SourceType `json:"source_type" gorm:"type:varchar(16);not null"`
	Source     string     `json:"source" gorm:"type:varchar(1024);not null;uniqueIndex:idx_ingested_source_doc"`
	DocID      string     `json:"doc_id" gorm:"type:varchar(512);not null;uniqueIndex:idx_ingested_source_doc"`
}

func (IngestedSource) TableName() string {
	return "ingested_sources"
}

// IndexStateID 索引状态表只有一行
const IndexStateID = 1

// IndexState 向量索引重置记录
type IndexState struct {
	ID           int        `json:"-" gorm:"primaryKey;autoIncrement:false"`
	LastResetUTC *time.Time `json:"last_reset_utc" gorm:"column:last_reset_utc"`
	ResetCount   int        `json:"reset_count" gorm:"not null;default:0"`
}

func (IndexState) TableName() string {
	return "index_state"
}

// SettingActiveChatModel 当前选用的对话模型
const SettingActiveChatModel = "active_chat_model"

// AppSetting 运行期可修改的键值设置
type AppSetting struct {
	Key       string    `json:"key" gorm:"primaryKey;type:varchar(128)"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_utc" gorm:"column:updated_utc;not null"`
}

func (AppSetting) TableName() string {
	return "app_settings"
}
