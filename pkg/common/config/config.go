package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string

	// Survey pipeline
	SurveyCycle         string
	RawDataDir          string
	ProcessedDir        string
	TableMapPath        string
	PipelineEventsTopic string

	// Model serving
	ModelDir           string
	Diseases           []string
	RunCacheTTL        time.Duration
	PredictionTopic    string
	PublishPredictions bool
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 200*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "riskwise"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "riskwise123"),
		PostgresDB:       getEnv("POSTGRES_DB", "riskwise"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "riskwise-platform"),

		SurveyCycle:         getEnv("SURVEY_CYCLE", "2017-2018"),
		RawDataDir:          getEnv("RAW_DATA_DIR", "data_interim"),
		ProcessedDir:        getEnv("PROCESSED_DATA_DIR", "data_processed"),
		TableMapPath:        getEnv("TABLE_MAP_PATH", "configs/nhanes_2017_2018_map.yaml"),
		PipelineEventsTopic: getEnv("PIPELINE_EVENTS_TOPIC", "pipeline.datasets"),

		ModelDir:           getEnv("MODEL_DIR", "models"),
		Diseases:           getStringSliceEnv("DISEASES", []string{"t2d"}),
		RunCacheTTL:        getDuration("RUN_CACHE_TTL", 10*time.Minute),
		PredictionTopic:    getEnv("PREDICTION_EVENTS_TOPIC", "serving.predictions"),
		PublishPredictions: getBoolEnv("PUBLISH_PREDICTIONS", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
