package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/types"
)

func parseUUID(s string) (types.FileID, error) {
	return uuid.Parse(s)
}

func timeFromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
