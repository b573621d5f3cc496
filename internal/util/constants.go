package util

import "time"

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageMinio = "minio"
)

// DayKey 把时间截断到 UTC 自然日
func DayKey(t time.Time) string {
	return t.UTC().Format(DateFormat)
}
