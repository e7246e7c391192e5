package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// ListLimit caps list endpoints that take no explicit limit.
const ListLimit = 200

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	godotenv.Load()
	// connecting happens in ConnectDatabaseWithRetry so the listener starts first
}

// databaseDSN builds the MySQL DSN from DB_* variables. A DB_HOST of
// /cloudsql/<CONNECTION_NAME> connects over the proxy socket.
func databaseDSN() string {
	cfg := mysqldrv.NewConfig()
	cfg.User = os.Getenv("DB_USER")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true
	// Every pooled connection runs READ COMMITTED; posting and matching row
	// locks assume it.
	cfg.Params = map[string]string{
		"charset":               "utf8mb4",
		"transaction_isolation": "'READ-COMMITTED'",
	}

	host := os.Getenv("DB_HOST")
	if strings.HasPrefix(host, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = host
	} else {
		cfg.Net = "tcp"
		cfg.Addr = host + ":" + os.Getenv("DB_PORT")
	}
	return cfg.FormatDSN()
}

// ConnectDatabaseWithRetry blocks until the database answers and sets the
// global handle used by GetDB.
func ConnectDatabaseWithRetry() {
	dsn := databaseDSN()
	retryForever("database", func(int) error {
		conn, err := gorm.Open(mysql.Open(dsn), initConfig())
		if err != nil {
			return err
		}
		if err := tunePool(conn); err != nil {
			return err
		}
		if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
			log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
		}
		if pluginErr := conn.Use(NewAuditStampPlugin()); pluginErr != nil {
			log.Printf("db connected but failed to install audit stamp plugin: %v", pluginErr)
		}
		db = conn
		return nil
	})
}

// tunePool reads DB_MAX_OPEN_CONNS (50), DB_MAX_IDLE_CONNS (25),
// DB_CONN_MAX_LIFETIME_SECONDS (300) and DB_CONN_MAX_IDLE_TIME_SECONDS (60).
func tunePool(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if n := intFromEnv("DB_MAX_OPEN_CONNS", 50); n > 0 {
		sqlDB.SetMaxOpenConns(n)
	}
	if n := intFromEnv("DB_MAX_IDLE_CONNS", 25); n >= 0 {
		sqlDB.SetMaxIdleConns(n)
	}
	if n := intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300); n > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(n) * time.Second)
	}
	if n := intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60); n > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(n) * time.Second)
	}
	return sqlDB.Ping()
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				Colorful:                  false,
				LogLevel:                  gormLogLevel(),
				SlowThreshold:             time.Second,
				IgnoreRecordNotFoundError: true,
			},
		),
		NamingStrategy: schema.NamingStrategy{},
	}
}

// GORM_LOG_LEVEL=info turns on statement logging for local debugging.
func gormLogLevel() logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("GORM_LOG_LEVEL"))) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}

// SetDB replaces the global handle. Integration tests and cmd tools use it.
func SetDB(conn *gorm.DB) {
	db = conn
}
