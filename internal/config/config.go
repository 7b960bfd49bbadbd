package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/tweetscout/tweetscout/api/types"
)

const (
	defaultDataDir       = "/home/tweetscout"
	defaultListenAddress = ":8080"
	defaultNodePath      = "node"
	defaultBridgeTimeout = 30
	defaultBridgeProcs   = 4
	defaultProbeTimeout  = 30
)

// ReadConfig builds the worker configuration from the environment. Components
// unmarshal from the returned map into their own configuration structs.
func ReadConfig() types.JobConfiguration {
	jc := types.JobConfiguration{}

	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	jc["log_level"] = level.String()
	SetLogLevel(level)

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	jc["data_dir"] = dataDir

	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		logrus.Debugf("No .env file in %s, reading from environment variables", dataDir)
	}

	listenAddress := os.Getenv("LISTEN_ADDRESS")
	if listenAddress == "" {
		listenAddress = defaultListenAddress
	}
	jc["listen_address"] = listenAddress

	// API key protecting the HTTP surface
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		jc["api_key"] = apiKey
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "tweetscout.db")
	}
	jc["db_path"] = dbPath

	twitterAccounts := os.Getenv("TWITTER_ACCOUNTS")
	if twitterAccounts != "" {
		accounts := strings.Split(twitterAccounts, ",")
		for i, a := range accounts {
			accounts[i] = strings.TrimSpace(a)
		}
		jc["twitter_accounts"] = accounts
	} else {
		jc["twitter_accounts"] = []string{}
	}

	jc["skip_login_verification"] = os.Getenv("TWITTER_SKIP_LOGIN_VERIFICATION") == "true"

	nodePath := os.Getenv("NODE_PATH")
	if nodePath == "" {
		nodePath = defaultNodePath
	}
	jc["node_path"] = nodePath

	bridgeDir := os.Getenv("BRIDGE_DIR")
	if bridgeDir == "" {
		bridgeDir = filepath.Join(dataDir, "bridge")
	}
	jc["bridge_dir"] = bridgeDir

	jc["bridge_timeout_seconds"] = readSecondsEnv("BRIDGE_TIMEOUT_SECONDS", defaultBridgeTimeout)
	jc["probe_timeout_seconds"] = readSecondsEnv("PROBE_TIMEOUT_SECONDS", defaultProbeTimeout)

	maxProcs := defaultBridgeProcs
	if s := os.Getenv("BRIDGE_MAX_PROCS"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			maxProcs = v
		} else {
			logrus.Errorf("Error parsing BRIDGE_MAX_PROCS %q. Setting to default.", s)
		}
	}
	jc["bridge_max_procs"] = maxProcs

	statsBufSize := 128
	if s := os.Getenv("STATS_BUF_SIZE"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			statsBufSize = v
		}
	}
	jc["stats_buf_size"] = uint(statsBufSize)

	jc["profiling_enabled"] = os.Getenv("ENABLE_PPROF") == "true"

	return jc
}

func readSecondsEnv(key string, defSecs int) time.Duration {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return time.Duration(v) * time.Second
		}
		logrus.Errorf("Error parsing %s %q. Setting to default.", key, s)
	}
	return time.Duration(defSecs) * time.Second
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		logrus.Errorf("Invalid log level %q, setting to %s", logLevel, logrus.InfoLevel)
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
