package constants

// Application identity
const (
	AppName        = "chap"
	AppDisplayName = "Chap"
)

// Paths
const (
	ConfigDir  = ".config/chap"
	ConfigFile = "config.yaml"
	DataDir    = ".chap"
	CoreDB     = "chap.db"
)

// API
const (
	DefaultPort         = 2480
	ShutdownTimeoutSecs = 10
)

// File permissions
const (
	DirPermissions = 0o755
)

// Default log level for startup (before config is loaded)
const DefaultLogLevel = "INFO"

// SQLitePragmas are applied to every connection at open time.
var SQLitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}
