package runlog

// Table is the audit table owned by the run log.
const Table = "etl_run_log"

var schemas = map[string][]string{
	"sqlite": {
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS etl_run_log (
  id TEXT PRIMARY KEY,
  pipeline_name TEXT NOT NULL,
  step_name TEXT NOT NULL,
  step_order INTEGER NOT NULL,
  start_time TIMESTAMP NOT NULL,
  end_time TIMESTAMP NULL,
  status TEXT NOT NULL,
  records_processed INTEGER NOT NULL DEFAULT 0,
  error_message TEXT NULL,
  log_file_path TEXT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_etl_run_log_pipeline ON etl_run_log (pipeline_name, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_etl_run_log_status ON etl_run_log (status)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS etl_run_log (
  id VARCHAR(36) NOT NULL PRIMARY KEY,
  pipeline_name VARCHAR(255) NOT NULL,
  step_name VARCHAR(255) NOT NULL,
  step_order INT NOT NULL,
  start_time DATETIME(6) NOT NULL,
  end_time DATETIME(6) NULL,
  status ENUM('RUNNING', 'SUCCESS', 'FAILED') NOT NULL,
  records_processed BIGINT NOT NULL DEFAULT 0,
  error_message TEXT NULL,
  log_file_path TEXT NULL,
  INDEX idx_etl_run_log_pipeline (pipeline_name, start_time),
  INDEX idx_etl_run_log_status (status)
)`,
	},
	"pgx": {
		`CREATE TABLE IF NOT EXISTS etl_run_log (
  id TEXT PRIMARY KEY,
  pipeline_name TEXT NOT NULL,
  step_name TEXT NOT NULL,
  step_order INTEGER NOT NULL,
  start_time TIMESTAMPTZ NOT NULL,
  end_time TIMESTAMPTZ NULL,
  status TEXT NOT NULL CHECK (status IN ('RUNNING', 'SUCCESS', 'FAILED')),
  records_processed BIGINT NOT NULL DEFAULT 0,
  error_message TEXT NULL,
  log_file_path TEXT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_etl_run_log_pipeline ON etl_run_log (pipeline_name, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_etl_run_log_status ON etl_run_log (status)`,
	},
}
