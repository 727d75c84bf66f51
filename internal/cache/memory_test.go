package cache_test

import (
	"testing"

	"github.com/TobiSchelling/leadscout/internal/cache"
	"github.com/TobiSchelling/leadscout/internal/cache/cachetest"
)

func TestMemoryStore(t *testing.T) {
	cachetest.Run(t, cache.NewMemoryStore())
}
