package database

import (
	"errors"
	"time"

	"entitlement-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDownloadQuotaExceeded is returned when a download increment would pass
// the product's quota.
var ErrDownloadQuotaExceeded = errors.New("download quota exceeded")

// GetOrCreateCourseProgress 获取或延迟创建进度记录
// The progress row is created lazily on first touch. Insert-if-absent on the
// unique (user, product) index, so concurrent first touches cannot collide.
func GetOrCreateCourseProgress(userID, productID string) (*models.CourseProgress, error) {
	seed := models.CourseProgress{
		UserID:    userID,
		ProductID: productID,
	}
	err := DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return nil, err
	}

	var progress models.CourseProgress
	err = DB.Where("user_id = ? AND product_id = ?", userID, productID).First(&progress).Error
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// GetCourseProgress 获取进度记录
// Returns nil (no error) when the user has never touched the product.
func GetCourseProgress(userID, productID string) (*models.CourseProgress, error) {
	var progress models.CourseProgress
	err := DB.Where("user_id = ? AND product_id = ?", userID, productID).First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &progress, nil
}

// ApplyCourseProgress 原子更新课程进度
// One guarded UPDATE, no read-modify-write: time is accumulated in SQL,
// completed_at is stamped only when it is still NULL, so two racing updates
// cannot lose a write or re-stamp completion.
func ApplyCourseProgress(userID, productID string, progress int, timeSpent int64, now time.Time) error {
	if _, err := GetOrCreateCourseProgress(userID, productID); err != nil {
		return err
	}

	return DB.Model(&models.CourseProgress{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Updates(map[string]interface{}{
			"progress":         progress,
			"total_time_spent": gorm.Expr("total_time_spent + ?", timeSpent),
			"completed":        gorm.Expr("CASE WHEN ? >= 100 THEN ? ELSE completed END", progress, true),
			"completed_at":     gorm.Expr("CASE WHEN ? >= 100 AND completed_at IS NULL THEN ? ELSE completed_at END", progress, now),
			"last_accessed_at": now,
		}).Error
}

// StampCourseStarted 记录开课时间，仅首次生效
// started_at is stamped once; last_accessed_at refreshes on every call.
func StampCourseStarted(userID, productID string, now time.Time) error {
	if _, err := GetOrCreateCourseProgress(userID, productID); err != nil {
		return err
	}

	return DB.Model(&models.CourseProgress{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Updates(map[string]interface{}{
			"started_at":       gorm.Expr("CASE WHEN started_at IS NULL THEN ? ELSE started_at END", now),
			"last_accessed_at": now,
		}).Error
}

// UpsertLessonProgress 合并课时进度
// Upsert keyed on (user, product, lesson): progress and completed are
// overwritten, time_spent accumulates inside the conflict clause so
// concurrent updates to the same lesson cannot drop time.
func UpsertLessonProgress(lesson *models.LessonProgress) error {
	return DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "product_id"}, {Name: "lesson_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"progress":         lesson.Progress,
			"completed":        lesson.Completed,
			"time_spent":       gorm.Expr("lesson_progress.time_spent + ?", lesson.TimeSpent),
			"last_accessed_at": lesson.LastAccessedAt,
			"updated_at":       time.Now(),
		}),
	}).Create(lesson).Error
}

// GetLessonProgress 获取某产品下用户全部课时进度
func GetLessonProgress(userID, productID string) ([]models.LessonProgress, error) {
	var lessons []models.LessonProgress
	err := DB.Where("user_id = ? AND product_id = ?", userID, productID).
		Order("lesson_id").Find(&lessons).Error
	return lessons, err
}

// TouchCourseAccess 刷新最近访问时间
func TouchCourseAccess(userID, productID string, now time.Time) error {
	if _, err := GetOrCreateCourseProgress(userID, productID); err != nil {
		return err
	}
	return DB.Model(&models.CourseProgress{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("last_accessed_at", now).Error
}

// AppendMilestone 追加里程碑（append-only，不去重）
func AppendMilestone(milestone *models.Milestone) error {
	return DB.Create(milestone).Error
}

// AppendBookmark 追加书签
func AppendBookmark(bookmark *models.Bookmark) error {
	return DB.Create(bookmark).Error
}

// AppendNote 追加笔记
func AppendNote(note *models.Note) error {
	return DB.Create(note).Error
}

// GetMilestones 获取里程碑列表
func GetMilestones(userID, productID string) ([]models.Milestone, error) {
	var milestones []models.Milestone
	err := DB.Where("user_id = ? AND product_id = ?", userID, productID).
		Order("completed_at").Find(&milestones).Error
	return milestones, err
}

// IncrementStreamCount 原子递增播放计数
func IncrementStreamCount(userID, productID string, now time.Time) error {
	if _, err := GetOrCreateCourseProgress(userID, productID); err != nil {
		return err
	}
	return DB.Model(&models.CourseProgress{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Updates(map[string]interface{}{
			"stream_count":     gorm.Expr("stream_count + 1"),
			"last_accessed_at": now,
		}).Error
}

// IncrementAccessCount 原子递增访问计数
func IncrementAccessCount(userID, productID string, now time.Time) error {
	if _, err := GetOrCreateCourseProgress(userID, productID); err != nil {
		return err
	}
	return DB.Model(&models.CourseProgress{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Updates(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": now,
		}).Error
}

// IncrementDownloadCount 原子递增下载计数并执行配额
// The quota check lives in the WHERE clause of the same UPDATE, so N
// concurrent downloads against a quota of N-1 can never over-grant.
// maxDownloads <= 0 means unlimited.
func IncrementDownloadCount(userID, productID string, maxDownloads int64, now time.Time) error {
	if _, err := GetOrCreateCourseProgress(userID, productID); err != nil {
		return err
	}

	query := DB.Model(&models.CourseProgress{}).
		Where("user_id = ? AND product_id = ?", userID, productID)
	if maxDownloads > 0 {
		query = query.Where("download_count < ?", maxDownloads)
	}

	result := query.Updates(map[string]interface{}{
		"download_count":   gorm.Expr("download_count + 1"),
		"last_accessed_at": now,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDownloadQuotaExceeded
	}
	return nil
}
