package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rpattn/vendorflow/internal/db"
)

// Config is the application configuration for both binaries.
type Config struct {
	Database db.Config
	Paths    PathsConfig
	Pipeline PipelineConfig
	Log      LogConfig
	Redis    RedisConfig
	Server   ServerConfig
	Watch    WatchConfig
	// File is the config file that was read, empty when none was found.
	File string
}

type PathsConfig struct {
	InputDir   string
	RulesDir   string
	ArchiveDir string
	ExportDir  string
	ReportDir  string
}

type PipelineConfig struct {
	Vendor             string
	Workers            int
	ChunkSize          int
	ExportFormat       string
	DedupKeys          []string
	DedupPolicy        string
	DedupAffectsStatus bool
	SuggestUnmapped    bool
}

type LogConfig struct {
	Mode  string
	Level string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type WatchConfig struct {
	Schedule string
}

// Load reads config.yaml from configPath (if present) and applies
// VENDORFLOW_* environment overrides, e.g. VENDORFLOW_DATABASE_DRIVER.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("VENDORFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	cfg.Database = db.Config{
		Driver:   v.GetString("database.driver"),
		Path:     v.GetString("database.path"),
		Host:     v.GetString("database.host"),
		Port:     v.GetInt("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		DBName:   v.GetString("database.dbname"),
		SSLMode:  v.GetString("database.sslmode"),
		MaxConns: v.GetInt32("database.max_conns"),
	}
	cfg.Paths = PathsConfig{
		InputDir:   v.GetString("paths.input_dir"),
		RulesDir:   v.GetString("paths.rules_dir"),
		ArchiveDir: v.GetString("paths.archive_dir"),
		ExportDir:  v.GetString("paths.export_dir"),
		ReportDir:  v.GetString("paths.report_dir"),
	}
	cfg.Pipeline = PipelineConfig{
		Vendor:             v.GetString("pipeline.vendor"),
		Workers:            v.GetInt("pipeline.workers"),
		ChunkSize:          v.GetInt("pipeline.chunk_size"),
		ExportFormat:       v.GetString("pipeline.export_format"),
		DedupKeys:          v.GetStringSlice("pipeline.dedup.keys"),
		DedupPolicy:        v.GetString("pipeline.dedup.policy"),
		DedupAffectsStatus: v.GetBool("pipeline.dedup.affects_status"),
		SuggestUnmapped:    v.GetBool("pipeline.suggest_unmapped"),
	}
	cfg.Log = LogConfig{Mode: v.GetString("log.mode"), Level: v.GetString("log.level")}
	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
		TTL:      v.GetDuration("redis.ttl"),
	}
	cfg.Server = ServerConfig{
		Addr:           v.GetString("server.addr"),
		AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
	}
	cfg.Watch = WatchConfig{Schedule: v.GetString("watch.schedule")}

	if cfg.Pipeline.Workers < 1 {
		return Config{}, fmt.Errorf("pipeline.workers must be at least 1, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.ChunkSize < 1 {
		return Config{}, fmt.Errorf("pipeline.chunk_size must be at least 1, got %d", cfg.Pipeline.ChunkSize)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := db.DefaultConfig()
	v.SetDefault("database.driver", def.Driver)
	v.SetDefault("database.path", def.Path)
	v.SetDefault("database.host", def.Host)
	v.SetDefault("database.port", def.Port)
	v.SetDefault("database.user", def.User)
	v.SetDefault("database.password", def.Password)
	v.SetDefault("database.dbname", def.DBName)
	v.SetDefault("database.sslmode", def.SSLMode)
	v.SetDefault("database.max_conns", 5)

	v.SetDefault("paths.input_dir", "data/incoming")
	v.SetDefault("paths.rules_dir", "config")
	v.SetDefault("paths.archive_dir", "data/archive")
	v.SetDefault("paths.export_dir", "data/exports")
	v.SetDefault("paths.report_dir", "data/reports")

	v.SetDefault("pipeline.vendor", "default")
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.chunk_size", 500)
	v.SetDefault("pipeline.export_format", "")
	v.SetDefault("pipeline.dedup.keys", []string{})
	v.SetDefault("pipeline.dedup.policy", "keep_first")
	v.SetDefault("pipeline.dedup.affects_status", false)
	v.SetDefault("pipeline.suggest_unmapped", false)

	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "info")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("watch.schedule", "@every 5m")
}
