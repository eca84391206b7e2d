package config

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	ServiceKindAPI    = "api"
	ServiceKindWorker = "worker"
	ServiceKindRelay  = "outbox-relay"
)

const (
	EnvAppEnv             = "CAISSEFLOW_APP_ENV"
	EnvPort               = "CAISSEFLOW_APP_PORT"
	EnvTimeZone           = "CAISSEFLOW_TIMEZONE"
	EnvDBDSN              = "CAISSEFLOW_DB_DSN"
	EnvRedisURL           = "CAISSEFLOW_REDIS_URL"
	EnvGCPProjectID       = "CAISSEFLOW_GCP_PROJECT_ID"
	EnvGCSLedgerBucket    = "CAISSEFLOW_GCS_LEDGER_BUCKET"
	EnvMobileMoneyFeeCap  = "CAISSEFLOW_MOBILE_MONEY_FEE_CAP_PERCENT"
	EnvActionsMaxAttempts = "CAISSEFLOW_ACTIONS_MAX_ATTEMPTS"
	EnvDocSyncAttempts    = "CAISSEFLOW_DOCSYNC_ATTEMPTS"
)
