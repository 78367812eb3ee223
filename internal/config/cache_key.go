package config

import (
	"fmt"
	"time"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentDailySessionsKey returns the counter key for sessions a student opened on the given day.
func (r *CacheKeyStruct) StudentDailySessionsKey(studentID int64, day time.Time) string {
	return fmt.Sprintf("student:%d:sessions:%s", studentID, day.UTC().Format("2006-01-02"))
}

// TestMonitorChannel returns the Redis PubSub channel name for a test's live monitor
func (r *CacheKeyStruct) TestMonitorChannel(testID int64) string {
	return fmt.Sprintf("test:%d:monitor", testID)
}

var CacheKey = NewCacheKeyStruct()
