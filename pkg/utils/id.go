package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateCallID generates a unique call ID.
func GenerateCallID() string {
	return uuid.NewString()
}

// GenerateConversationID generates a unique conversation ID.
func GenerateConversationID() string {
	return uuid.NewString()
}

// GenerateUserID generates a unique user ID.
func GenerateUserID() string {
	return uuid.NewString()
}

// GenerateRequestID generates a unique request ID.
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}
