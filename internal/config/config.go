package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	LogLevel    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Kaspi KaspiConfig
	Amo   AmoConfig
	Sync  SyncConfig

	AdminAddr   string
	AdminSecret string

	SchedulerLockPath string
}

// KaspiConfig covers the upstream marketplace API account.
type KaspiConfig struct {
	BaseURL  string
	APIToken string
	PageSize int
}

// AmoConfig covers the downstream amoCRM account and defaults applied to
// created leads.
type AmoConfig struct {
	Subdomain    string
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Optional bootstrap tokens, used only until the oauth_tokens row exists.
	BootstrapAccessToken  string
	BootstrapRefreshToken string
	BootstrapExpiresAt    int64

	PipelineID        int64
	StatusID          int64
	ResponsibleUserID int64
	CatalogID         int64

	OrderCodeFieldID    int64
	AddressFieldID      int64
	OrderDateFieldID    int64
	ContactPhoneField   string
	ContactAddressField int64

	RequestsPerSecond float64
}

// SyncConfig bounds the pipeline and reconciler windows.
type SyncConfig struct {
	OrderState        string
	MaxLookback       time.Duration
	ReconcileWindow   time.Duration
	StaleClaimAfter   time.Duration
	SyncInterval      time.Duration
	ReconcileInterval time.Duration
}

var subdomainPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "kaspisync"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kaspisync"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "kaspisync.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 2),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Kaspi: KaspiConfig{
			BaseURL:  getenv("KASPI_API_BASE", "https://kaspi.kz/shop/api/v2"),
			APIToken: strings.TrimSpace(getenv("KASPI_API_TOKEN", "")),
			PageSize: getenvInt("KASPI_PAGE_SIZE", 100),
		},
		Amo: AmoConfig{
			Subdomain:    NormalizeSubdomain(getenv("AMO_SUBDOMAIN", "")),
			ClientID:     strings.TrimSpace(getenv("AMO_CLIENT_ID", "")),
			ClientSecret: strings.TrimSpace(getenv("AMO_CLIENT_SECRET", "")),
			RedirectURI:  strings.TrimSpace(getenv("AMO_REDIRECT_URI", "")),

			BootstrapAccessToken:  getenv("AMO_ACCESS_TOKEN", ""),
			BootstrapRefreshToken: getenv("AMO_REFRESH_TOKEN", ""),
			BootstrapExpiresAt:    getenvInt64("AMO_EXPIRES_AT", 0),

			PipelineID:        getenvInt64("AMO_PIPELINE_ID", 0),
			StatusID:          getenvInt64("AMO_STATUS_ID", 0),
			ResponsibleUserID: getenvInt64("AMO_RESPONSIBLE_USER_ID", 0),
			CatalogID:         getenvInt64("AMO_CATALOG_ID", 0),

			OrderCodeFieldID:    getenvInt64("AMO_LEAD_ORDER_CODE_FIELD_ID", 0),
			AddressFieldID:      getenvInt64("AMO_LEAD_ADDRESS_FIELD_ID", 0),
			OrderDateFieldID:    getenvInt64("AMO_LEAD_ORDER_DATE_FIELD_ID", 0),
			ContactPhoneField:   getenv("AMO_CONTACT_PHONE_FIELD_CODE", "PHONE"),
			ContactAddressField: getenvInt64("AMO_CONTACT_ADDRESS_FIELD_ID", 0),

			RequestsPerSecond: getenvFloat("AMO_REQUESTS_PER_SECOND", 7.0),
		},
		Sync: SyncConfig{
			OrderState:        getenv("KASPI_ORDER_STATE", "NEW"),
			MaxLookback:       time.Duration(getenvInt("SYNC_MAX_LOOKBACK_DAYS", 14)) * 24 * time.Hour,
			ReconcileWindow:   time.Duration(getenvInt("RECONCILE_WINDOW_DAYS", 7)) * 24 * time.Hour,
			StaleClaimAfter:   time.Duration(getenvInt("SYNC_STALE_CLAIM_MINUTES", 30)) * time.Minute,
			SyncInterval:      time.Duration(getenvInt("SYNC_INTERVAL_SECONDS", 60)) * time.Second,
			ReconcileInterval: time.Duration(getenvInt("RECONCILE_INTERVAL_SECONDS", 600)) * time.Second,
		},

		AdminAddr:   getenv("ADMIN_ADDR", ":8080"),
		AdminSecret: strings.TrimSpace(getenv("CRON_SECRET", "")),

		SchedulerLockPath: getenv("SCHEDULER_LOCK_PATH", "storage/cron.lock"),
	}

	return cfg
}

// Validate rejects configurations that cannot possibly talk to both external
// accounts. The process refuses to start on these.
func (c Config) Validate() error {
	var errs []error
	if c.Kaspi.APIToken == "" {
		errs = append(errs, errors.New("KASPI_API_TOKEN is empty"))
	}
	if c.Amo.Subdomain == "" {
		errs = append(errs, errors.New("AMO_SUBDOMAIN is empty after normalisation"))
	} else if strings.Contains(c.Amo.Subdomain, ".") {
		errs = append(errs, fmt.Errorf("AMO_SUBDOMAIN %q must not contain dots", c.Amo.Subdomain))
	} else if !subdomainPattern.MatchString(c.Amo.Subdomain) {
		errs = append(errs, fmt.Errorf("AMO_SUBDOMAIN %q must contain only letters, digits, or hyphen", c.Amo.Subdomain))
	}
	if c.Amo.ClientID == "" {
		errs = append(errs, errors.New("AMO_CLIENT_ID is empty"))
	}
	if c.Amo.ClientSecret == "" {
		errs = append(errs, errors.New("AMO_CLIENT_SECRET is empty"))
	}
	return errors.Join(errs...)
}

// NormalizeSubdomain accepts a bare subdomain, a host, or a full URL and
// reduces it to the account part: "https://shop.amocrm.ru/" -> "shop".
func NormalizeSubdomain(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if idx := strings.Index(value, "://"); idx >= 0 {
		value = value[idx+3:]
	}
	value = strings.TrimLeft(value, "/")
	if idx := strings.IndexAny(value, "/\\"); idx >= 0 {
		value = value[:idx]
	}
	lower := strings.ToLower(value)
	if idx := strings.Index(lower, ".amocrm."); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
