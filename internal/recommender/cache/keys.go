package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"recommendation-engine/internal/models"
)

const (
	rankedPrefix   = "recs"
	featuresPrefix = "userfeat"
	epochPrefix    = "userepoch"
	contextHashLen = 16
)

// RankedKey is recs:{userID}:{contextHash}.
func RankedKey(userID int64, contextHash string) string {
	return fmt.Sprintf("%s:%d:%s", rankedPrefix, userID, contextHash)
}

// FeaturesKey is userfeat:{userID}.
func FeaturesKey(userID int64) string {
	return fmt.Sprintf("%s:%d", featuresPrefix, userID)
}

// EpochKey is userepoch:{userID}. It counts invalidations and is never
// matched by an invalidation itself.
func EpochKey(userID int64) string {
	return fmt.Sprintf("%s:%d", epochPrefix, userID)
}

func rankedPattern(userID int64) string {
	return fmt.Sprintf("%s:%d:*", rankedPrefix, userID)
}

// ContextHash digests every field of the request context that changes the
// ranked list. Filter order, case and duplicates do not change the hash.
func ContextHash(rc models.RecommendationContext) string {
	// json.Marshal on a struct without maps is deterministic.
	payload, _ := json.Marshal(rc.Canonical())
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:contextHashLen]
}
