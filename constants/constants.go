package constants

// General

const (
	AppName                      = "forklift"
	EnvVarPrefix                 = "FL" // prefixed for environment variables in twelveFactorMode
	StatsCaptureFrequencySeconds = 5
	TimeFormatYearSeconds        = "20060102T150405" // used for human readable names
	EmojiBang                    = "\U0001F4A5"
)

// Run control

const (
	MaxRunMinutes            = 30    // wall-clock ceiling of a pipeline run, also the run guard staleness ceiling
	DefaultWorkerPoolSize    = 4     // bounded parallelism for task bodies in one run
	DefaultIdBatchSize       = 10000 // id range batch size
	DefaultRetryCount        = 3
	DefaultRetryDelaySeconds = 10
	DefaultCallTimeoutSecs   = 120
	DefaultInsertBatchRows   = 500 // rows per multi-row INSERT statement
)

// Connections

const (
	ConnectionTypeSqlServer = "sqlserver"
	ConnectionTypeSnowflake = "snowflake"
	ConnectionTypeNetezza   = "netezza"
	ConnectionTypePostgres  = "postgres"
	ConnectionTypeSqlite    = "sqlite"
	ConnectionTypeS3        = "s3"
	ConnectionTypeHttp      = "http"
	DefaultWarehouseName    = "warehouse"
)

// Run registry states as stored by registries.

const (
	RunStateRunning   = "running"
	RunStateSucceeded = "succeeded"
	RunStateFailed    = "failed"
	RunStateCancelled = "cancelled"
)
