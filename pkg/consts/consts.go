package consts

import (
	"os"
	"time"
)

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// DefaultConfigFile is the config file looked up when --config isn't given
	DefaultConfigFile = "stagekeeper.yaml"

	// DefaultPipelineName is recorded in the run log when the config omits one
	DefaultPipelineName = "stagekeeper"

	// DefaultLogDir holds pipeline and per-step log files
	DefaultLogDir = "logs"

	// DefaultRunLogFile is the sqlite run log created inside the log dir
	DefaultRunLogFile = "stagekeeper.db"

	// DefaultStepTimeout bounds the wall clock of a single stage process
	DefaultStepTimeout = time.Hour

	// DefaultDelimiter is the statement terminator in effect at the top of a script
	DefaultDelimiter = ";"

	// DelimiterKeyword starts a line that switches the active terminator
	DelimiterKeyword = "DELIMITER"

	// StatementPreviewLen is how much of a failed statement is echoed in errors
	StatementPreviewLen = 200

	// StderrTailLen is how much trailing stderr is kept for a failed step
	StderrTailLen = 2000

	// RecordsMarker prefixes the stdout line a stage uses to report its row count
	RecordsMarker = "records_processed="
)
