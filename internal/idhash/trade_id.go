package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(spec_id|trading_date|entry_time)
// tradingDate is "YYYY-MM-DD"; entryTime is Unix milliseconds (0 for NO_TRADE days).
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(specID string, tradingDate string, entryTime int64) string {
	data := fmt.Sprintf("%s|%s|%d", specID, tradingDate, entryTime)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
