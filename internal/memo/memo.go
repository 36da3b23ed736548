// Package memo memoizes generated results for the lifetime of a session.
//
// Only successful results are stored; callers never Put a failure so a
// failed item is regenerated on the next request.
package memo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kinds of memoized results
const (
	KindExplanation  = "explanation"
	KindIllustration = "illustration"
)

// Store holds memoized values. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Key identifies a result by kind, item and the exact prompt text.
// Any change to language, family mode or template changes the prompt and so the key.
func Key(kind string, itemID int64, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s:%d:%s", kind, itemID, hex.EncodeToString(sum[:])[:16])
}
