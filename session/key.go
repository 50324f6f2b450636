package session

import (
	"strconv"
	"strings"
)

const sessionKeyPrefix = "session:"

func sessionKeyOf(sessionID uint64) string {
	return sessionKeyPrefix + strconv.FormatUint(sessionID, 10)
}

func parseSessionKey(key string) (uint64, bool) {
	if !strings.HasPrefix(key, sessionKeyPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(key, sessionKeyPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
