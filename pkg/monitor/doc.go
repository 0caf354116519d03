// Package monitor runs the background jobs of a canary deployment on cron
// schedules (github.com/robfig/cron/v3):
//
//   - Canary check: evaluates every release in canary and applies the
//     automatic rollback or promotion enabled in the promotion policy.
//   - Retention: deletes evaluation records older than RetentionDays from
//     storage. In-memory statistics are not affected.
//
// Common schedules:
//   - "@every 1m"   - Every minute
//   - "0 3 * * *"   - Daily at 3 AM
//   - "0 */6 * * *" - Every 6 hours
package monitor
