package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Host string
	Port string

	RabbitMQHost       string
	RabbitMQPort       string
	RabbitMQStream     string
	RabbitMQExchange   string
	RabbitMQRoutingKey string
	RabbitMQUsername   string
	RabbitMQPassword   string

	MongoURI    string
	MongoDBName string

	QdrantHost string
	QdrantPort int

	WebappHost string
	WebappPort string

	ThreadUtilisation float64
	UseGPU            bool
	LoggingLevel      string

	MessageQueueProvider string // "rabbitmq" or "google"
	GoogleProjectID      string

	UnstructuredAPIURL string
	UnstructuredAPIKey string

	VectorDatabase       string // "qdrant", "pinecone" or "pgvector"
	VectorDatabaseAPIKey string
	VectorDatabaseURL    string

	HashingSalt string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string

	LocalEmbedURL string
	WorkDir       string
}

// LoadConfig loads the environment variables and returns config.
// Every variable has a default; nothing is fatal at this stage.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnv("PORT", "8686"),

		RabbitMQHost:       getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:       getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQStream:     getEnv("RABBITMQ_STREAM", "embedding-stream"),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "embedding-exchange"),
		RabbitMQRoutingKey: getEnv("RABBITMQ_ROUTING_KEY", "embedding"),
		RabbitMQUsername:   getEnv("RABBITMQ_USERNAME", "guest"),
		RabbitMQPassword:   getEnv("RABBITMQ_PASSWORD", "guest"),

		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "vectorproxy"),

		QdrantHost: getEnv("QDRANT_HOST", "localhost"),
		QdrantPort: getEnvInt("QDRANT_PORT", 6334),

		WebappHost: getEnv("WEBAPP_HOST", "localhost"),
		WebappPort: getEnv("WEBAPP_PORT", "3000"),

		ThreadUtilisation: getEnvFloat("THREAD_PERCENTAGE_UTILISATION", 0.8),
		UseGPU:            getEnvBool("USE_GPU", true),
		LoggingLevel:      getEnv("LOGGING_LEVEL", "info"),

		MessageQueueProvider: getEnv("MESSAGE_QUEUE_PROVIDER", "rabbitmq"),
		GoogleProjectID:      getEnv("GOOGLE_PROJECT_ID", ""),

		UnstructuredAPIURL: getEnv("UNSTRUCTURED_API_URL", ""),
		UnstructuredAPIKey: getEnv("UNSTRUCTURED_API_KEY", ""),

		VectorDatabase:       getEnv("VECTOR_DATABASE", "qdrant"),
		VectorDatabaseAPIKey: getEnv("VECTOR_DATABASE_API_KEY", ""),
		VectorDatabaseURL:    getEnv("VECTOR_DATABASE_URL", ""),

		HashingSalt: getEnv("HASHING_SALT", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),

		LocalEmbedURL: getEnv("LOCAL_EMBED_URL", "http://localhost:11434"),
		WorkDir:       getEnv("WORK_DIR", os.TempDir()),
	}

	return cfg
}

// RabbitMQURL assembles the broker URL from its parts.
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUsername, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

// WebappURL is the base URL for completion webhooks.
func (c *Config) WebappURL() string {
	return fmt.Sprintf("http://%s:%s", c.WebappHost, c.WebappPort)
}

// DebugEnabled reports whether LOGGING_LEVEL asks for debug output.
func (c *Config) DebugEnabled() bool {
	return strings.EqualFold(c.LoggingLevel, "debug")
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}
