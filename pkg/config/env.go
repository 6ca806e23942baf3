package config

const (
	EnvPrefix = "QUOTEHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "QUOTEHUB_APP_ENV"
	EnvPort     = "QUOTEHUB_APP_PORT"
	EnvLogLevel = "QUOTEHUB_LOG_LEVEL"

	EnvDBDSN  = "QUOTEHUB_DB_DSN"
	EnvDBHost = "QUOTEHUB_DB_HOST"
	EnvDBPort = "QUOTEHUB_DB_PORT"
	EnvDBUser = "QUOTEHUB_DB_USER"
	EnvDBPass = "QUOTEHUB_DB_PASSWORD"
	EnvDBName = "QUOTEHUB_DB_NAME"

	EnvRedisURL  = "QUOTEHUB_REDIS_URL"
	EnvJWTSecret = "QUOTEHUB_JWT_SECRET"
	EnvJWTIssuer = "QUOTEHUB_JWT_ISSUER"

	EnvGCPProjectID                = "QUOTEHUB_GCP_PROJECT_ID"
	EnvPubSubConsolidationTopic    = "QUOTEHUB_PUBSUB_CONSOLIDATION_TOPIC"
	EnvConsolidationDeliveryMethod = "QUOTEHUB_CONSOLIDATION_DEFAULT_DELIVERY_METHOD"
	EnvConsolidationStaleTTLDays   = "QUOTEHUB_CONSOLIDATION_STALE_DRAFT_TTL_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
