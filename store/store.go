package store

import (
	"time"

	"github.com/zf-portal/leadflow/internal/profile"
	"github.com/zf-portal/leadflow/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Caches
	leadCache     *cache.Cache // cache for leads by id
	templateCache *cache.Cache // cache for funnel templates by stage
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:        driver,
		profile:       profile,
		leadCache:     cache.New(cacheConfig),
		templateCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.leadCache.Close()
	s.templateCache.Close()

	return s.driver.Close()
}
