package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/database"
	"entitlement-api/internal/models"

	"github.com/google/uuid"
)

// Progress actions accepted by Apply.
const (
	ActionUpdateProgress    = "update_progress"
	ActionStartCourse       = "start_course"
	ActionCompleteMilestone = "complete_milestone"
	ActionBookmarkLesson    = "bookmark_lesson"
	ActionAddNote           = "add_note"
	ActionTrackAccess       = "track_access"
)

// ErrUnknownAction is returned for an action outside the closed set.
var ErrUnknownAction = errors.New("unknown progress action")

// ValidationError names the request field an action is missing.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// ProgressAction is one tracked engagement event.
type ProgressAction struct {
	Action string `json:"action"`

	// update_progress
	Progress  *int   `json:"progress,omitempty"`
	LessonID  string `json:"lesson_id,omitempty"`
	TimeSpent int64  `json:"time_spent,omitempty"` // seconds
	Completed *bool  `json:"completed,omitempty"`

	// complete_milestone
	MilestoneID string `json:"milestone_id,omitempty"`

	// complete_milestone / bookmark_lesson / add_note
	Note    string `json:"note,omitempty"`
	Content string `json:"content,omitempty"`
}

// ProgressSnapshot is the read model returned by Get.
type ProgressSnapshot struct {
	Progress       int                     `json:"progress"`
	Completed      bool                    `json:"completed"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
	StartedAt      *time.Time              `json:"started_at,omitempty"`
	TotalTimeSpent int64                   `json:"total_time_spent"`
	LastAccessedAt *time.Time              `json:"last_accessed_at,omitempty"`
	DownloadCount  int64                   `json:"download_count"`
	StreamCount    int64                   `json:"stream_count"`
	AccessCount    int64                   `json:"access_count"`
	LessonProgress []models.LessonProgress `json:"lesson_progress"`
	Milestones     []models.Milestone      `json:"milestones"`
}

// ProgressService tracks consumption progress and engagement against the
// per-user per-product progress records. Every mutation requires a FULL
// entitlement first.
type ProgressService struct {
	entitlements *EntitlementService
}

// NewProgressService creates a progress service
func NewProgressService(entitlements *EntitlementService) *ProgressService {
	return &ProgressService{entitlements: entitlements}
}

// requireFull gates every read and write.
func (s *ProgressService) requireFull(ctx context.Context, userID, productID string) error {
	decision, err := s.entitlements.Check(ctx, userID, productID)
	if err != nil {
		return err
	}
	switch decision.Level {
	case AccessFull:
		return nil
	case AccessExpired:
		return ErrAccessExpired
	default:
		return &DeniedError{Reason: decision.Reason}
	}
}

// Get returns the progress snapshot for the user and product.
func (s *ProgressService) Get(ctx context.Context, userID, productID string) (*ProgressSnapshot, error) {
	if err := s.requireFull(ctx, userID, productID); err != nil {
		return nil, err
	}

	progress, err := database.GetCourseProgress(userID, productID)
	if err != nil {
		return nil, err
	}

	snapshot := &ProgressSnapshot{
		LessonProgress: []models.LessonProgress{},
		Milestones:     []models.Milestone{},
	}
	if progress != nil {
		snapshot.Progress = progress.Progress
		snapshot.Completed = progress.Completed
		snapshot.CompletedAt = progress.CompletedAt
		snapshot.StartedAt = progress.StartedAt
		snapshot.TotalTimeSpent = progress.TotalTimeSpent
		snapshot.LastAccessedAt = progress.LastAccessedAt
		snapshot.DownloadCount = progress.DownloadCount
		snapshot.StreamCount = progress.StreamCount
		snapshot.AccessCount = progress.AccessCount
	}

	lessons, err := database.GetLessonProgress(userID, productID)
	if err != nil {
		return nil, err
	}
	snapshot.LessonProgress = lessons

	milestones, err := database.GetMilestones(userID, productID)
	if err != nil {
		return nil, err
	}
	snapshot.Milestones = milestones

	return snapshot, nil
}

// Apply performs one action from the closed action set.
func (s *ProgressService) Apply(ctx context.Context, userID, productID string, action ProgressAction) error {
	if err := s.requireFull(ctx, userID, productID); err != nil {
		return err
	}

	now := time.Now()

	switch action.Action {
	case ActionUpdateProgress:
		return s.updateProgress(userID, productID, action, now)

	case ActionStartCourse:
		return database.StampCourseStarted(userID, productID, now)

	case ActionCompleteMilestone:
		if action.MilestoneID == "" {
			return &ValidationError{Field: "milestone_id"}
		}
		err := database.AppendMilestone(&models.Milestone{
			UserID:      userID,
			ProductID:   productID,
			MilestoneID: action.MilestoneID,
			Note:        action.Note,
			CompletedAt: now,
		})
		if err != nil {
			return err
		}
		return database.TouchCourseAccess(userID, productID, now)

	case ActionBookmarkLesson:
		if action.LessonID == "" {
			return &ValidationError{Field: "lesson_id"}
		}
		err := database.AppendBookmark(&models.Bookmark{
			UserID:       userID,
			ProductID:    productID,
			LessonID:     action.LessonID,
			Note:         action.Note,
			BookmarkedAt: now,
		})
		if err != nil {
			return err
		}
		return database.TouchCourseAccess(userID, productID, now)

	case ActionAddNote:
		if action.Content == "" {
			return &ValidationError{Field: "content"}
		}
		err := database.AppendNote(&models.Note{
			NoteID:    uuid.NewString(),
			UserID:    userID,
			ProductID: productID,
			LessonID:  action.LessonID,
			Content:   action.Content,
		})
		if err != nil {
			return err
		}
		return database.TouchCourseAccess(userID, productID, now)

	case ActionTrackAccess:
		return database.IncrementAccessCount(userID, productID, now)

	default:
		return ErrUnknownAction
	}
}

// updateProgress clamps, merges lesson progress when a lesson is named, and
// applies the course-level update atomically.
func (s *ProgressService) updateProgress(userID, productID string, action ProgressAction, now time.Time) error {
	if action.Progress == nil {
		return &ValidationError{Field: "progress"}
	}
	progress := clampProgress(*action.Progress)

	// The completed flag is lesson-scoped; course completion is derived from
	// progress reaching 100.
	lessonCompleted := progress >= 100
	if action.Completed != nil {
		lessonCompleted = *action.Completed || lessonCompleted
	}

	if action.LessonID != "" {
		lesson := &models.LessonProgress{
			UserID:         userID,
			ProductID:      productID,
			LessonID:       action.LessonID,
			Progress:       progress,
			TimeSpent:      action.TimeSpent,
			Completed:      lessonCompleted,
			LastAccessedAt: &now,
		}
		if err := database.UpsertLessonProgress(lesson); err != nil {
			return err
		}
	}

	return database.ApplyCourseProgress(userID, productID, progress, action.TimeSpent, now)
}

// clampProgress keeps progress inside [0,100].
func clampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
