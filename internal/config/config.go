package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 10s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Discovery
	DiscoveryFile     string        // path to the services.yaml discovery file
	DiscoveryInterval time.Duration // periodic discovery pass (default: 5m)
	DiscoveryWatch    bool          // also rediscover on file change

	// Supervisor
	RetrainInterval    time.Duration // anomaly model retrain period (default: 1h)
	GlobalScanInterval time.Duration // aggregator's own pass (default: 1m)
	CheckTimeout       time.Duration // per health check execution timeout
	RestartTimeout     time.Duration // per restart execution timeout
	CPUThreshold       float64       // CPU utilization veto (0..1)
	AnomalyThreshold   float64       // anomaly score veto (0..1)

	// Aggregator sub-checks
	MemoryWarn     float64
	MemoryCritical float64
	DiskPath       string
	DiskWarn       float64
	DiskCritical   float64
	DependencyURLs map[string]string // name => url, external reachability checks

	// Metrics backend
	MetricsBackend  string // "prometheus" | "influx" | "none"
	PrometheusURL   string
	PrometheusQuery string // fmt template, receives service name and window
	MetricsWindow   time.Duration
	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string

	// History & alerts
	HistoryRetention  time.Duration
	HistoryGCInterval time.Duration
	AlertChannel      string
	AlertRate         int // alerts per minute per service and severity

	TracingExporter string // "none" | "stdout" | "otlp"

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedHosts []string // optional, restrict mutating routes to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	TriggerRate  int      // manual triggers per minute per client IP
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SENTINEL_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SENTINEL_SHUTDOWN_TIMEOUT", 10*time.Second),

		// Logging
		LogLevel:  getenv("SENTINEL_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SENTINEL_PRETTY_LOG", true),

		// Discovery
		DiscoveryFile:     getenv("SENTINEL_DISCOVERY_FILE", "/app/services.yaml"),
		DiscoveryInterval: mustDuration("SENTINEL_DISCOVERY_INTERVAL", 5*time.Minute),
		DiscoveryWatch:    mustBool("SENTINEL_DISCOVERY_WATCH", true),

		// Supervisor
		RetrainInterval:    mustDuration("SENTINEL_RETRAIN_INTERVAL", time.Hour),
		GlobalScanInterval: mustDuration("SENTINEL_GLOBAL_SCAN_INTERVAL", time.Minute),
		CheckTimeout:       mustDuration("SENTINEL_CHECK_TIMEOUT", 10*time.Second),
		RestartTimeout:     mustDuration("SENTINEL_RESTART_TIMEOUT", 30*time.Second),
		CPUThreshold:       getenvFloat("SENTINEL_CPU_THRESHOLD", 0.9),
		AnomalyThreshold:   getenvFloat("SENTINEL_ANOMALY_THRESHOLD", 0.8),

		// Aggregator
		MemoryWarn:     getenvFloat("SENTINEL_MEMORY_WARN", 0.8),
		MemoryCritical: getenvFloat("SENTINEL_MEMORY_CRITICAL", 0.95),
		DiskPath:       getenv("SENTINEL_DISK_PATH", "/"),
		DiskWarn:       getenvFloat("SENTINEL_DISK_WARN", 0.8),
		DiskCritical:   getenvFloat("SENTINEL_DISK_CRITICAL", 0.95),
		DependencyURLs: parseNamedURLs(getenv("SENTINEL_DEPENDENCY_URLS", "")),

		// Metrics backend
		MetricsBackend:  getenv("SENTINEL_METRICS_BACKEND", "none"),
		PrometheusURL:   getenv("SENTINEL_PROMETHEUS_URL", "http://localhost:9090"),
		PrometheusQuery: getenv("SENTINEL_PROMETHEUS_QUERY", `sum(rate(process_cpu_seconds_total{job="%s"}[%s]))`),
		MetricsWindow:   mustDuration("SENTINEL_METRICS_WINDOW", 5*time.Minute),
		InfluxURL:       getenv("SENTINEL_INFLUX_URL", "http://localhost:8086"),
		InfluxToken:     getenv("SENTINEL_INFLUX_TOKEN", ""),
		InfluxOrg:       getenv("SENTINEL_INFLUX_ORG", ""),
		InfluxBucket:    getenv("SENTINEL_INFLUX_BUCKET", "telegraf"),

		// History & alerts
		HistoryRetention:  mustDuration("SENTINEL_HISTORY_RETENTION", 7*24*time.Hour),
		HistoryGCInterval: mustDuration("SENTINEL_HISTORY_GC_INTERVAL", time.Hour),
		AlertChannel:      getenv("SENTINEL_ALERT_CHANNEL", "sentinel:alerts"),
		AlertRate:         getenvInt("SENTINEL_ALERT_RATE", 6),

		TracingExporter: getenv("SENTINEL_TRACING_EXPORTER", "none"),

		// Redis settings
		RedisAddr:             requireEnv("SENTINEL_REDIS_ADDR"),
		RedisUser:             getenv("SENTINEL_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("SENTINEL_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("SENTINEL_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SENTINEL_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("SENTINEL_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("SENTINEL_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("SENTINEL_TRUST_PROXY", false),
		TriggerRate:  getenvInt("SENTINEL_TRIGGER_RATE", 30),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: SENTINEL_REDIS_PASSWORD is required when SENTINEL_REDIS_PASSWORD_REQUIRED=true")
	}

	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		if cfg.InfluxToken != "" {
			cfgCopy.InfluxToken = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

func (c *Config) validate() error {
	switch c.MetricsBackend {
	case "prometheus", "influx", "none":
	default:
		return fmt.Errorf("SENTINEL_METRICS_BACKEND must be prometheus, influx or none, got %q", c.MetricsBackend)
	}
	switch c.TracingExporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("SENTINEL_TRACING_EXPORTER must be none, stdout or otlp, got %q", c.TracingExporter)
	}
	for name, v := range map[string]float64{
		"SENTINEL_CPU_THRESHOLD":     c.CPUThreshold,
		"SENTINEL_ANOMALY_THRESHOLD": c.AnomalyThreshold,
		"SENTINEL_MEMORY_WARN":       c.MemoryWarn,
		"SENTINEL_MEMORY_CRITICAL":   c.MemoryCritical,
		"SENTINEL_DISK_WARN":         c.DiskWarn,
		"SENTINEL_DISK_CRITICAL":     c.DiskCritical,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", name, v)
		}
	}
	if c.MetricsBackend == "influx" && (c.InfluxOrg == "" || c.InfluxToken == "") {
		return fmt.Errorf("SENTINEL_INFLUX_ORG and SENTINEL_INFLUX_TOKEN are required for the influx backend")
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// parseNamedURLs reads "name=url, other=url" pairs. Malformed pairs are skipped.
func parseNamedURLs(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitAndTrim(s) {
		name, url, ok := strings.Cut(pair, "=")
		name, url = strings.TrimSpace(name), strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			continue
		}
		out[name] = url
	}
	return out
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
