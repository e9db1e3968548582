package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "cache"
	cfg.DB = 3
	cfg.Password = "pw"

	opts := cfg.Options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
}

func TestCounterKey(t *testing.T) {
	assert.Equal(t, "fragstore:counter:tenant_user:user12:students", CounterKey("tenant_user:user12", "students"))
}
