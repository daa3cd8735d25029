// Package config provides centralized default values for the tour offline engine
package config

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Storage Roots
	StorageRoot     string // base directory for the filesystem substrate
	ObjectStorePath string // sqlite file backing the embedded substrate

	// Offline Cache Configuration (embedded substrate)
	CacheExpirationDays   int
	MaxCachedTours        int
	MaxCacheSizeMB        int
	EvictionThresholdPct  int // percentage of the ceiling that triggers eviction
	UserStorageLimitMB    int // user-configurable soft limit, checked by the manager
	PendingTourMaxAgeDays int

	// Image Pipeline Configuration
	MaxImageSizeKB    int
	ImageMaxDimension int
	ImageQuality      int

	// Backend Collaborator
	BackendBaseURL string
	BackendTimeout time.Duration

	// Cleanup Worker
	CleanupInterval time.Duration
	CleanupVerbose  bool

	// Sync Event Bus
	SyncEventBufferSize int
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "10560")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Storage Roots
	StorageRoot = getEnvString("STORAGE_ROOT", defaultStorageRoot())
	ObjectStorePath = getEnvString("OBJECT_STORE_PATH", filepath.Join(StorageRoot, "offline-cache.db"))

	// Offline Cache Configuration
	CacheExpirationDays = getEnvInt("CACHE_EXPIRATION_DAYS", 7)
	MaxCachedTours = getEnvInt("MAX_CACHED_TOURS", 5)
	MaxCacheSizeMB = getEnvInt("MAX_CACHE_SIZE_MB", 100)
	EvictionThresholdPct = getEnvInt("EVICTION_THRESHOLD_PCT", 90)
	UserStorageLimitMB = getEnvInt("USER_STORAGE_LIMIT_MB", 1000)
	PendingTourMaxAgeDays = getEnvInt("PENDING_TOUR_MAX_AGE_DAYS", 7)

	// Image Pipeline Configuration
	MaxImageSizeKB = getEnvInt("MAX_IMAGE_SIZE_KB", 500)
	ImageMaxDimension = getEnvInt("IMAGE_MAX_DIMENSION", 2048)
	ImageQuality = getEnvInt("IMAGE_QUALITY", 80)

	// Backend Collaborator
	BackendBaseURL = getEnvString("BACKEND_BASE_URL", "http://localhost:54321")
	BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", 30*time.Second)

	// Cleanup Worker
	CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 30*time.Minute)
	CleanupVerbose = getEnvBool("CLEANUP_VERBOSE", true)

	// Sync Event Bus
	SyncEventBufferSize = getEnvInt("SYNC_EVENT_BUFFER_SIZE", 10)
}

func defaultStorageRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tour360-data"
	}
	return filepath.Join(home, "tour360-data")
}
