package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailarchive/interfaces"
	"github.com/customeros/mailarchive/internal/cron"
)

// Scheduler reports the state of the cron manager.
type Scheduler interface {
	Running() bool
	Entries() []cron.JobEntry
}

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the scheduler state and the refresh-all job snapshot.
// scheduler may be nil when cron is not running in this process.
func Status(scheduler Scheduler, jobs interfaces.JobTracker, credentials interfaces.CredentialStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		schedulerStatus := gin.H{"running": false, "jobs": []cron.JobEntry{}}
		if scheduler != nil {
			schedulerStatus["running"] = scheduler.Running()
			schedulerStatus["jobs"] = scheduler.Entries()
		}
		c.JSON(http.StatusOK, gin.H{
			"scheduler":         schedulerStatus,
			"refreshAll":        jobs.Status(),
			"credentialsLocked": !credentials.IsUnlocked(),
		})
	}
}
