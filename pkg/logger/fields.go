package logger

// Component names attached with WithComponent
const (
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentAppState  = "appstate"
	ComponentMigration = "migration"
	ComponentBackup    = "backup"
	ComponentAMQP      = "amqp"
	ComponentGCS       = "gcs"
	ComponentSQLite    = "sqlite"
	ComponentPostgres  = "postgres"
	ComponentRedis     = "redis"
	ComponentCLI       = "ledgerctl"
)
