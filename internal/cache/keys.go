package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:status:%s", jobID)
}

func RateLimitKey(remoteAddr string) string {
	return fmt.Sprintf("ratelimit:%s", remoteAddr)
}
