package cmd

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	m "github.com/mouse-blink/relocator/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "relocator"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName      = "output"
	excludeFlagName     = "exclude"
	cwdFlagName         = "cwd"
	runParallelFlagName = "parallel"
	sourceMapsFlagName  = "source-maps"
	diffContextFlagName = "context"
	verboseFlagName     = "verbose"

	runParallelConfigKey = "run.parallel"
	sourceMapsConfigKey  = "run.source_maps"
	diffContextConfigKey = "diff.context"
	excludeConfigKey     = "paths.exclude"

	platformOSKey          = "platform.os"
	platformArchKey        = "platform.arch"
	platformNodeVersionKey = "platform.node_version"
	platformNodeABIKey     = "platform.node_abi"
	platformNapiVersionKey = "platform.napi_version"
	platformLibcKey        = "platform.libc"

	defaultOutputDir   = "dist"
	defaultRunParallel = 1
	defaultSourceMaps  = false
	defaultDiffContext = 3

	envPrefix = "RELOCATOR"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".relocator.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultOutputDir)
	viper.SetDefault(cwdFlagName, "")
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(sourceMapsConfigKey, defaultSourceMaps)
	viper.SetDefault(diffContextConfigKey, defaultDiffContext)
	viper.SetDefault(excludeConfigKey, []string{})

	// The host is the default target; a config file can pin another one.
	host := m.HostPlatform()
	viper.SetDefault(platformOSKey, host.OS)
	viper.SetDefault(platformArchKey, host.Arch)
	viper.SetDefault(platformNodeVersionKey, host.NodeVersion)
	viper.SetDefault(platformNodeABIKey, host.NodeABI)
	viper.SetDefault(platformNapiVersionKey, host.NapiVersion)
	viper.SetDefault(platformLibcKey, host.Libc)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		return
	}
}

// platformFromConfig reads the target platform from config and environment.
func platformFromConfig() m.Platform {
	return m.Platform{
		OS:          viper.GetString(platformOSKey),
		Arch:        viper.GetString(platformArchKey),
		NodeVersion: viper.GetString(platformNodeVersionKey),
		NodeABI:     viper.GetString(platformNodeABIKey),
		NapiVersion: viper.GetInt(platformNapiVersionKey),
		Libc:        viper.GetString(platformLibcKey),
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Numeric slog levels are accepted too (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
