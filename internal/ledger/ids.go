package ledger

import (
	"time"

	"github.com/google/uuid"
)

func newEventID() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC()
}
