package preflight

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"seshtrack/internal/config"
	"seshtrack/internal/database"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	db  *database.MongoDB
	cfg *config.Config
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.MongoDB, cfg *config.Config) *Checker {
	return &Checker{db: db, cfg: cfg}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkMongoConnection(ctx),
		c.checkLocalStorePath(),
		c.checkGeocoding(),
		c.checkRedis(),
	}

	// Print summary
	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("\n📊 Pre-flight summary: %d passed, %d failed, %d warnings\n", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkMongoConnection verifies the remote sesh store answers
func (c *Checker) checkMongoConnection(ctx context.Context) CheckResult {
	if err := c.db.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "MongoDB Connection",
			Status:  "fail",
			Message: "Cannot reach the sesh store",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "MongoDB Connection",
		Status:  "pass",
		Message: "Sesh store connection successful",
	}
}

// checkLocalStorePath verifies the offline queue directory is writable
func (c *Checker) checkLocalStorePath() CheckResult {
	if c.cfg.LocalStorePath == "" {
		return CheckResult{
			Name:    "Offline Queue Store",
			Status:  "warning",
			Message: "LOCAL_STORE_PATH not set; queued seshes are lost on restart",
		}
	}

	dir := filepath.Dir(c.cfg.LocalStorePath)
	info, err := os.Stat(dir)
	if err != nil {
		return CheckResult{
			Name:    "Offline Queue Store",
			Status:  "fail",
			Message: fmt.Sprintf("Directory %s is not accessible", dir),
			Error:   err,
		}
	}
	if !info.IsDir() {
		return CheckResult{
			Name:    "Offline Queue Store",
			Status:  "fail",
			Message: fmt.Sprintf("%s is not a directory", dir),
		}
	}

	return CheckResult{
		Name:    "Offline Queue Store",
		Status:  "pass",
		Message: fmt.Sprintf("Queue store path %s is usable", c.cfg.LocalStorePath),
	}
}

// checkGeocoding verifies the reverse-geocoding configuration
func (c *Checker) checkGeocoding() CheckResult {
	if c.cfg.MapboxAccessToken == "" {
		return CheckResult{
			Name:    "Reverse Geocoding",
			Status:  "warning",
			Message: "MAPBOX_ACCESS_TOKEN not set; synced seshes carry no city",
		}
	}
	if c.cfg.MapboxAPIURL == "" {
		return CheckResult{
			Name:    "Reverse Geocoding",
			Status:  "fail",
			Message: "MAPBOX_API_URL is empty while a token is configured",
		}
	}

	return CheckResult{
		Name:    "Reverse Geocoding",
		Status:  "pass",
		Message: "Mapbox geocoding configured",
	}
}

// checkRedis reports whether realtime events will be available
func (c *Checker) checkRedis() CheckResult {
	if c.cfg.RedisURL == "" {
		return CheckResult{
			Name:    "Redis",
			Status:  "warning",
			Message: "REDIS_URL not set; realtime events and cross-instance sync locks disabled",
		}
	}

	return CheckResult{
		Name:    "Redis",
		Status:  "pass",
		Message: "Redis configured",
	}
}
