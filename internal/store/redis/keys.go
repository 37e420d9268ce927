package redis

const (
	// KeyHealthHistory is the sorted set of result IDs scored by unix millis
	KeyHealthHistory = "sentinel:health:history"
	// KeyPrefixHealthResult is the prefix for stored aggregate results
	KeyPrefixHealthResult = "sentinel:health:result:"
	// KeyAlertHistory is the capped list of recent alerts, newest first
	KeyAlertHistory = "sentinel:alerts:history"
	// KeyAnomalyModel holds the last trained model
	KeyAnomalyModel = "sentinel:anomaly:model"
)

// HealthResultKey returns the Redis key for a stored aggregate result
func HealthResultKey(id string) string {
	return KeyPrefixHealthResult + id
}
