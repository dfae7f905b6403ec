package common

import (
	"github.com/google/uuid"
)

// NewTaskID generates a unique task ID
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewHistoryID generates a unique task history ID
func NewHistoryID() string {
	return "hist_" + uuid.New().String()
}

// NewArticleID generates a unique article ID
func NewArticleID() string {
	return "art_" + uuid.New().String()
}

// NewCrawlerID generates a unique crawler ID
func NewCrawlerID() string {
	return "crw_" + uuid.New().String()
}
