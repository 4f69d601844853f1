package common

const (
	CacheKeyFeedSnapshot = "feed.snapshot"
	CacheKeyAccountState = "feed.account"

	JobDailyDigest = "daily-unprotected-digest"
)
