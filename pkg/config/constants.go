package config

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BILLINGDASH_DB_DSN"
	EnvDBHost = "BILLINGDASH_DB_HOST"
	EnvDBUser = "BILLINGDASH_DB_USER"
	EnvDBName = "BILLINGDASH_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
