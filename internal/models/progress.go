package models

import (
	"time"
)

// CourseProgress 学习进度表
// One row per (user, product). All mutations go through single-statement
// guarded updates in the database layer, so concurrent writers cannot lose
// an update. The old schema-less per-product attribute blob is decomposed
// into this row plus LessonProgress / Milestone / Bookmark / Note so that
// independent writers never collide on one record.
type CourseProgress struct {
	BaseModel

	UserID    string `json:"user_id" gorm:"not null;size:64;index:idx_progress_user_product,unique"`
	ProductID string `json:"product_id" gorm:"not null;size:64;index:idx_progress_user_product,unique"`

	Progress       int   `json:"progress" gorm:"not null;default:0"`         // 0-100, clamped on write
	TotalTimeSpent int64 `json:"total_time_spent" gorm:"not null;default:0"` // seconds

	Completed   bool       `json:"completed" gorm:"default:false"`
	CompletedAt *time.Time `json:"completed_at"` // stamped once, first time progress reaches 100
	StartedAt   *time.Time `json:"started_at"`

	LastAccessedAt *time.Time `json:"last_accessed_at"`

	// Usage counters, monotonically non-decreasing
	DownloadCount int64 `json:"download_count" gorm:"not null;default:0"`
	StreamCount   int64 `json:"stream_count" gorm:"not null;default:0"`
	AccessCount   int64 `json:"access_count" gorm:"not null;default:0"`
}

// TableName 指定表名
func (CourseProgress) TableName() string {
	return "course_progress"
}

// LessonProgress 课时进度表
// One row per (user, product, lesson) — the keyed sub-map of the old blob.
type LessonProgress struct {
	BaseModel

	UserID    string `json:"user_id" gorm:"not null;size:64;index:idx_lesson_user_product_lesson,unique"`
	ProductID string `json:"product_id" gorm:"not null;size:64;index:idx_lesson_user_product_lesson,unique"`
	LessonID  string `json:"lesson_id" gorm:"not null;size:64;index:idx_lesson_user_product_lesson,unique"`

	Progress  int   `json:"progress" gorm:"not null;default:0"`   // 0-100, overwritten on update
	TimeSpent int64 `json:"time_spent" gorm:"not null;default:0"` // seconds, accumulated
	Completed bool  `json:"completed" gorm:"default:false"`

	LastAccessedAt *time.Time `json:"last_accessed_at"`
}

// TableName 指定表名
func (LessonProgress) TableName() string {
	return "lesson_progress"
}

// Milestone 里程碑记录，append-only
type Milestone struct {
	BaseModel

	UserID      string    `json:"user_id" gorm:"not null;size:64;index"`
	ProductID   string    `json:"product_id" gorm:"not null;size:64;index"`
	MilestoneID string    `json:"milestone_id" gorm:"not null;size:64"`
	Note        string    `json:"note" gorm:"type:text"`
	CompletedAt time.Time `json:"completed_at"`
}

// Bookmark 课时书签，append-only
type Bookmark struct {
	BaseModel

	UserID       string    `json:"user_id" gorm:"not null;size:64;index"`
	ProductID    string    `json:"product_id" gorm:"not null;size:64;index"`
	LessonID     string    `json:"lesson_id" gorm:"not null;size:64"`
	Note         string    `json:"note" gorm:"type:text"`
	BookmarkedAt time.Time `json:"bookmarked_at"`
}

// Note 学习笔记，append-only
type Note struct {
	BaseModel

	NoteID    string `json:"note_id" gorm:"not null;size:64;uniqueIndex"`
	UserID    string `json:"user_id" gorm:"not null;size:64;index"`
	ProductID string `json:"product_id" gorm:"not null;size:64;index"`
	LessonID  string `json:"lesson_id" gorm:"size:64"` // optional, empty = product-level note
	Content   string `json:"content" gorm:"type:text;not null"`
}
