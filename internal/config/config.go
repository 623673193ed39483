package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

// Store selects and configures the collection backend.
type Store struct {
	Backend        string
	Namespace      string
	SQLitePath     string
	ValkeyAddrs    []string
	ValkeyPassword string
	ValkeyDB       int
	ValkeyTLS      bool
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
}

// Generator configures the Gemini news generator.
type Generator struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Refresh tunes the ingestion pipeline.
type Refresh struct {
	Lookback    time.Duration
	Buckets     int
	EmptyPolicy string
}

// Search contains Elasticsearch parameters. An empty address disables search.
type Search struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Kafka configures the ingested-news topic. No brokers disables publishing.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Deploy configures the deployment simulator.
type Deploy struct {
	StepDelay   time.Duration
	BaseVersion string
}

// API describes HTTP-layer configuration.
type API struct {
	Store
	Generator
	Refresh
	Search
	Kafka
	Deploy
	BindAddr         string
	DefaultPage      int
	MaxPage          int
	InsightCacheSize int
	InsightCacheTTL  time.Duration
}

// Worker holds configuration for the Kafka -> Elasticsearch indexer.
type Worker struct {
	Search
	Kafka
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// Refresher configures the scheduled refresh job.
type Refresher struct {
	Store
	Generator
	Refresh
	Kafka
	Interval time.Duration
}

// CLI configures the operator command line.
type CLI struct {
	Store
	Generator
	Refresh
	Deploy
}

// LoadDotEnv loads variables from path into the environment. A missing file is not an error;
// variables already set win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Store:            loadStore(),
		Generator:        loadGenerator(),
		Refresh:          loadRefresh(),
		Search:           loadSearch(""),
		Kafka:            loadKafka(""),
		Deploy:           loadDeploy(),
		BindAddr:         getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:      getInt("API_PAGE_SIZE", 20),
		MaxPage:          getInt("API_MAX_PAGE_SIZE", 100),
		InsightCacheSize: getInt("INSIGHT_CACHE_SIZE", 500),
		InsightCacheTTL:  getDuration("INSIGHT_CACHE_TTL", "24h"),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.InsightCacheSize <= 0 {
		return nil, fmt.Errorf("INSIGHT_CACHE_SIZE must be positive")
	}
	if err := validateCommon(c.Store, c.Generator, c.Refresh); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Search:           loadSearch("http://elasticsearch:9200"),
		Kafka:            loadKafka("kafka:9092"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "crm-news-indexer"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 4),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.ElasticsearchAddr == "" {
		return nil, fmt.Errorf("ELASTICSEARCH_ADDR is required")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadRefresher builds a Refresher config from environment variables.
func LoadRefresher() (*Refresher, error) {
	c := &Refresher{
		Store:     loadStore(),
		Generator: loadGenerator(),
		Refresh:   loadRefresh(),
		Kafka:     loadKafka(""),
		Interval:  getDuration("REFRESH_INTERVAL", "6h"),
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if err := validateCommon(c.Store, c.Generator, c.Refresh); err != nil {
		return nil, err
	}

	return c, nil
}

// LoadCLI builds a CLI config from environment variables.
func LoadCLI() (*CLI, error) {
	c := &CLI{
		Store:     loadStore(),
		Generator: loadGenerator(),
		Refresh:   loadRefresh(),
		Deploy:    loadDeploy(),
	}
	if err := validateCommon(c.Store, c.Generator, c.Refresh); err != nil {
		return nil, err
	}
	return c, nil
}

func loadStore() Store {
	return Store{
		Backend:        strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		Namespace:      getEnv("STORE_NAMESPACE", "crm_spotlight"),
		SQLitePath:     getEnv("SQLITE_PATH", "spotlight.db"),
		ValkeyAddrs:    splitAndTrim(getEnv("VALKEY_ADDRS", "valkey:6379")),
		ValkeyPassword: getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:       getInt("VALKEY_DB", 0),
		ValkeyTLS:      getBool("VALKEY_TLS", false),
		DynamoTable:    getEnv("DYNAMODB_TABLE", "crm_spotlight_collections"),
		DynamoRegion:   getEnv("AWS_REGION", "us-east-1"),
		DynamoEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
	}
}

func loadGenerator() Generator {
	return Generator{
		APIKey:  getEnv("GEMINI_API_KEY", ""),
		Model:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		Timeout: getDuration("GENERATOR_TIMEOUT", "90s"),
	}
}

func loadRefresh() Refresh {
	return Refresh{
		Lookback:    getDuration("REFRESH_LOOKBACK", "72h"),
		Buckets:     getInt("REFRESH_BUCKETS", 6),
		EmptyPolicy: strings.ToLower(getEnv("REFRESH_EMPTY_POLICY", "error")),
	}
}

func loadSearch(fallbackAddr string) Search {
	return Search{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", fallbackAddr),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "crm_news"),
	}
}

func loadKafka(fallbackBrokers string) Kafka {
	return Kafka{
		Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", fallbackBrokers)),
		Topic:   getEnv("KAFKA_TOPIC", "crm_news_ingested"),
	}
}

func loadDeploy() Deploy {
	return Deploy{
		StepDelay:   getDuration("DEPLOY_STEP_DELAY", "1500ms"),
		BaseVersion: getEnv("DEPLOY_BASE_VERSION", "1.0"),
	}
}

func validateCommon(s Store, g Generator, r Refresh) error {
	switch s.Backend {
	case "memory", "sqlite", "valkey", "dynamodb":
	default:
		return fmt.Errorf("STORE_BACKEND %q is not one of memory, sqlite, valkey, dynamodb", s.Backend)
	}
	if s.Backend == "valkey" && len(s.ValkeyAddrs) == 0 {
		return fmt.Errorf("VALKEY_ADDRS must contain at least one address")
	}
	if g.Timeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT must be positive")
	}
	if r.Lookback <= 0 {
		return fmt.Errorf("REFRESH_LOOKBACK must be positive")
	}
	if r.Buckets <= 0 {
		return fmt.Errorf("REFRESH_BUCKETS must be positive")
	}
	if r.EmptyPolicy != "error" && r.EmptyPolicy != "ignore" {
		return fmt.Errorf("REFRESH_EMPTY_POLICY must be error or ignore")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
