package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dsi-icl/acacia-sub002/pkg/apihelpers"
	"github.com/dsi-icl/acacia-sub002/pkg/db"
	"github.com/dsi-icl/acacia-sub002/pkg/study"
	"github.com/dsi-icl/acacia-sub002/pkg/utils"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v2"

	studyDB "github.com/dsi-icl/acacia-sub002/pkg/db/study"
)

// Environment variables
const (
	ENV_CONFIG_FILE_PATH = "CONFIG_FILE_PATH"

	ENV_GIN_DEBUG_MODE       = "GIN_DEBUG_MODE"
	ENV_DATA_API_LISTEN_PORT = "DATA_API_LISTEN_PORT"
	ENV_CORS_ALLOW_ORIGINS   = "CORS_ALLOW_ORIGINS"

	ENV_MANAGEMENT_USER_JWT_SIGN_KEY   = "MANAGEMENT_USER_JWT_SIGN_KEY"
	ENV_MANAGEMENT_USER_JWT_EXPIRES_IN = "MANAGEMENT_USER_JWT_EXPIRES_IN"

	ENV_REQUIRE_MUTUAL_TLS     = "REQUIRE_MUTUAL_TLS"
	ENV_MUTUAL_TLS_SERVER_CERT = "MUTUAL_TLS_SERVER_CERT"
	ENV_MUTUAL_TLS_SERVER_KEY  = "MUTUAL_TLS_SERVER_KEY"
	ENV_MUTUAL_TLS_CA_CERT     = "MUTUAL_TLS_CA_CERT"

	ENV_STUDY_DB_CONNECTION_STR        = "STUDY_DB_CONNECTION_STR"
	ENV_STUDY_DB_USERNAME              = "STUDY_DB_USERNAME"
	ENV_STUDY_DB_PASSWORD              = "STUDY_DB_PASSWORD"
	ENV_STUDY_DB_CONNECTION_PREFIX     = "STUDY_DB_CONNECTION_PREFIX"
	ENV_STUDY_DB_NAME_PREFIX           = "STUDY_DB_NAME_PREFIX"
	ENV_STUDY_DB_TIMEOUT               = "STUDY_DB_TIMEOUT"
	ENV_STUDY_DB_IDLE_CONN_TIMEOUT     = "STUDY_DB_IDLE_CONN_TIMEOUT"
	ENV_STUDY_DB_USE_NO_CURSOR_TIMEOUT = "STUDY_DB_USE_NO_CURSOR_TIMEOUT"
	ENV_STUDY_DB_MAX_POOL_SIZE         = "STUDY_DB_MAX_POOL_SIZE"

	ENV_FILESTORE_PATH = "FILESTORE_PATH"
)

type DataApiConfig struct {
	// Logging configs
	Logging utils.LoggerConfig `json:"logging" yaml:"logging"`

	// Gin configs
	GinConfig struct {
		DebugMode    bool     `json:"debug_mode" yaml:"debug_mode"`
		AllowOrigins []string `json:"allow_origins" yaml:"allow_origins"`
		Port         string   `json:"port" yaml:"port"`

		// Mutual TLS configs
		MTLS struct {
			Use              bool                        `json:"use" yaml:"use"`
			CertificatePaths apihelpers.CertificatePaths `json:"certificate_paths" yaml:"certificate_paths"`
		} `json:"mtls" yaml:"mtls"`
	} `json:"gin_config" yaml:"gin_config"`

	// JWT configs
	ManagementUserJWTConfig struct {
		SignKey   string        `json:"sign_key" yaml:"sign_key"`
		ExpiresIn time.Duration `json:"expires_in" yaml:"expires_in"`
	} `json:"management_user_jwt_config" yaml:"management_user_jwt_config"`

	// DB configs
	DBConfigs struct {
		StudyDB db.DBConfigYaml `json:"study_db" yaml:"study_db"`
	} `json:"db_configs" yaml:"db_configs"`

	// File upload configs
	FilestorePath    string `json:"filestore_path" yaml:"filestore_path"`
	MaxFileSizeBytes int64  `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
}

const defaultMaxFileSizeBytes = 128 << 20

var (
	conf DataApiConfig

	studyDBService *studyDB.StudyDBService
	studyService   *study.Service
)

func init() {
	// Read config from file
	yamlFile, err := os.ReadFile(os.Getenv(ENV_CONFIG_FILE_PATH))
	if err != nil {
		fmt.Println("Error reading config file: " + err.Error())
	} else {
		err = yaml.UnmarshalStrict(yamlFile, &conf)
		if err != nil {
			fmt.Println("Error parsing config file: " + err.Error())
			conf = DataApiConfig{}
		}
	}

	// Init logger:
	utils.InitLogger(
		conf.Logging.LogLevel,
		conf.Logging.IncludeSrc,
		conf.Logging.LogToFile,
		conf.Logging.Filename,
		conf.Logging.MaxSize,
		conf.Logging.MaxAge,
		conf.Logging.MaxBackups,
		conf.Logging.CompressOldLogs,
		conf.Logging.IncludeBuildInfo,
	)

	// Override configs from environment variables
	envOverrides()

	if conf.ManagementUserJWTConfig.SignKey == "" {
		slog.Error("Management user JWT sign key not set - configure " + ENV_MANAGEMENT_USER_JWT_SIGN_KEY + " env variable.")
		panic("Management user JWT sign key not set")
	}

	if conf.MaxFileSizeBytes <= 0 {
		conf.MaxFileSizeBytes = defaultMaxFileSizeBytes
	}

	checkFilestorePath()

	if !conf.GinConfig.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	initDBs()

	studyService = study.NewService(studyDBService)
}

func envOverrides() {
	if os.Getenv(ENV_GIN_DEBUG_MODE) != "" {
		conf.GinConfig.DebugMode = os.Getenv(ENV_GIN_DEBUG_MODE) == "true"
	}
	if port := os.Getenv(ENV_DATA_API_LISTEN_PORT); port != "" {
		conf.GinConfig.Port = port
	}
	if origins := os.Getenv(ENV_CORS_ALLOW_ORIGINS); origins != "" {
		conf.GinConfig.AllowOrigins = strings.Split(origins, ",")
	}

	if signKey := os.Getenv(ENV_MANAGEMENT_USER_JWT_SIGN_KEY); signKey != "" {
		conf.ManagementUserJWTConfig.SignKey = signKey
	}
	if expInVal := os.Getenv(ENV_MANAGEMENT_USER_JWT_EXPIRES_IN); expInVal != "" {
		expiresIn, err := utils.ParseDurationString(expInVal)
		if err != nil {
			slog.Error("could not parse JWT expiry", slog.String("error", err.Error()), slog.String(ENV_MANAGEMENT_USER_JWT_EXPIRES_IN, expInVal))
			panic(err)
		}
		conf.ManagementUserJWTConfig.ExpiresIn = expiresIn
	}

	if os.Getenv(ENV_REQUIRE_MUTUAL_TLS) == "true" {
		conf.GinConfig.MTLS.Use = true
		conf.GinConfig.MTLS.CertificatePaths = apihelpers.CertificatePaths{
			ServerCertPath: os.Getenv(ENV_MUTUAL_TLS_SERVER_CERT),
			ServerKeyPath:  os.Getenv(ENV_MUTUAL_TLS_SERVER_KEY),
			CACertPath:     os.Getenv(ENV_MUTUAL_TLS_CA_CERT),
		}
	}

	if dbUsername := os.Getenv(ENV_STUDY_DB_USERNAME); dbUsername != "" {
		conf.DBConfigs.StudyDB.Username = dbUsername
	}
	if dbPassword := os.Getenv(ENV_STUDY_DB_PASSWORD); dbPassword != "" {
		conf.DBConfigs.StudyDB.Password = dbPassword
	}

	if fsPath := os.Getenv(ENV_FILESTORE_PATH); fsPath != "" {
		conf.FilestorePath = fsPath
	}
}

func checkFilestorePath() {
	// To store uploaded file payloads
	fsPath := conf.FilestorePath
	if fsPath == "" {
		slog.Error("Filestore path not set - configure " + ENV_FILESTORE_PATH + " env variable.")
		panic("Filestore path not set")
	}

	if _, err := os.Stat(fsPath); os.IsNotExist(err) {
		slog.Error("Filestore path does not exist", slog.String("path", fsPath))
		panic("Filestore path does not exist")
	}
}

func initDBs() {
	var err error
	if conf.DBConfigs.StudyDB.ConnectionStr == "" {
		// No config file: fall back to reading the DB config from env vars.
		studyDBService, err = studyDB.NewStudyDBService(db.ReadDBConfigFromEnv(
			"study DB",
			ENV_STUDY_DB_CONNECTION_STR,
			ENV_STUDY_DB_USERNAME,
			ENV_STUDY_DB_PASSWORD,
			ENV_STUDY_DB_CONNECTION_PREFIX,
			ENV_STUDY_DB_TIMEOUT,
			ENV_STUDY_DB_IDLE_CONN_TIMEOUT,
			ENV_STUDY_DB_MAX_POOL_SIZE,
			ENV_STUDY_DB_USE_NO_CURSOR_TIMEOUT,
			ENV_STUDY_DB_NAME_PREFIX,
		))
	} else {
		studyDBService, err = studyDB.NewStudyDBService(db.DBConfigFromYamlObj(conf.DBConfigs.StudyDB))
	}
	if err != nil {
		slog.Error("Error connecting to Study DB", slog.String("error", err.Error()))
		panic(err)
	}
}
