package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-core/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded", "disabled"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker reports on the database, Redis and the escalation backlog.
// Either dependency can be nil; in-memory deployments run without both.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redisClient: redisClient, startTime: time.Now()}
}

const (
	healthVersion    = "1.0.0"
	backlogThreshold = 10000
)

// HandleHealth returns the status of all components. It always answers 200;
// use /health/ready for checks that need a 503.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when a configured critical dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  overall != "unhealthy",
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 3)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()
	go func() { ch <- result{"escalations", hc.checkBacklog(ctx)} }()

	checks := make(map[string]ComponentCheck, 3)
	for i := 0; i < 3; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "disabled", Message: "in-memory store"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	return latencyCheck(time.Since(start), err, time.Second)
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "disabled", Message: "advisory locks in use"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	return latencyCheck(time.Since(start), err, 500*time.Millisecond)
}

func latencyCheck(latency time.Duration, err error, slow time.Duration) ComponentCheck {
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

// checkBacklog counts active escalation states as a proxy for scheduler
// health. A very large backlog is reported as degraded.
func (hc *HealthChecker) checkBacklog(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "disabled"}
	}
	queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	var count int
	err := hc.db.QueryRowContext(queryCtx,
		`SELECT COUNT(*) FROM escalation_states WHERE NOT paused AND NOT completed`,
	).Scan(&count)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("backlog query failed: %v", err)}
	}

	if count > backlogThreshold {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("high backlog: %d active escalations", count)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: fmt.Sprintf("%d active escalations", count)}
}

// determineOverallStatus is "unhealthy" when the database is down,
// "degraded" when anything else is down or slow, "healthy" otherwise.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if db, ok := checks["database"]; ok && db.Status == "down" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" || c.Status == "down" {
			return "degraded"
		}
	}
	return "healthy"
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
