package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok() Pinger {
	return PingerFunc(func(context.Context) error { return nil })
}

func failing(msg string) Pinger {
	return PingerFunc(func(context.Context) error { return errors.New(msg) })
}

func TestCheck_AllHealthy(t *testing.T) {
	c := NewChecker()
	c.Register("database", ok())
	c.Register("redis", ok())

	report := c.Check(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, StatusHealthy, report.Checks["database"].Status)
	assert.Empty(t, report.Checks["database"].Message)
}

func TestCheck_RequiredFailureIsUnhealthy(t *testing.T) {
	c := NewChecker()
	c.Register("database", failing("connection refused"))
	c.RegisterOptional("kafka", ok())

	report := c.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "connection refused", report.Checks["database"].Message)
	assert.Equal(t, StatusHealthy, report.Checks["kafka"].Status)
}

func TestCheck_OptionalFailureDegrades(t *testing.T) {
	c := NewChecker()
	c.Register("database", ok())
	c.RegisterOptional("kafka", failing("no brokers"))

	report := c.Check(context.Background())

	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusDegraded, report.Checks["kafka"].Status)
}

func TestCheck_NilPinger(t *testing.T) {
	c := NewChecker()
	c.Register("database", nil)

	report := c.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "database not configured", report.Checks["database"].Message)
}

func TestCheck_Timeout(t *testing.T) {
	c := NewChecker(WithTimeout(10 * time.Millisecond))
	c.Register("slow", PingerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	report := c.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks["slow"].Message)
}

func TestCheck_NoChecks(t *testing.T) {
	report := NewChecker().Check(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Checks)
}

func TestCheck_UptimeUsesClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	c := NewChecker(WithClock(func() time.Time { return now }))
	now = start.Add(90 * time.Second)

	report := c.Check(context.Background())

	assert.Equal(t, "1m30s", report.Uptime)
	assert.Equal(t, now, report.ReportedAt)
}

func TestNames_Sorted(t *testing.T) {
	c := NewChecker()
	c.Register("redis", ok())
	c.Register("database", ok())
	c.RegisterOptional("kafka", ok())

	assert.Equal(t, []string{"database", "kafka", "redis"}, c.Names())
}
