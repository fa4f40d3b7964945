package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserID identifies a registered account. The zero value means anonymous.
type UserID = uuid.UUID

// Anonymous is the identity of an unauthenticated request.
var Anonymous UserID

// User is a registered trading account. Balance is mutated only through the
// ledger store's versioned commit operations.
type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	Balance      Cents
	Version      int64
	CreatedAt    time.Time
}
