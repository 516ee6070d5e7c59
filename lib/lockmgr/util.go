package lockmgr

import (
	"github.com/google/uuid"
	"time"
)

// now is the clock used for lock expiry
var now = time.Now

// generateOwnerID creates a new unique owner ID (random UUID)
func generateOwnerID() string {
	return uuid.NewString()
}
