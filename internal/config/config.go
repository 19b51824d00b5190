package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr   string // e.g. nsqd:4150
	OutcomesTopic string // NSQ topic for delivery outcome events
	PublishEvents bool   // Whether to publish outcome events at all
}

type API struct {
	Host         string        // listen host, empty for all interfaces
	Port         string        // listen port
	User         string        // expected user for the diagnostic auth probe
	Pass         string        // expected password for the diagnostic auth probe
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout; must exceed the slowest message stream
}

type Store struct {
	Dir string // spool directory for raw message bodies
}

type Worker struct {
	APIBase       string          // base URL of the apiserver
	Zone          string          // sending zone to pull from
	ClientID      string          // worker pool identity reported on every pull
	RelayURL      string          // where message payloads get POSTed
	PollInterval  time.Duration   // delay between empty pulls
	DeferSchedule []time.Duration // ttl schedule by attempt for deferred deliveries
	HTTPPort      string          // worker HTTP metrics port
}

type FakeReceiver struct {
	FailFirstN      int           // Number of requests to fail initially
	ResponseDelayMS int           // Simulated response delay in milliseconds
	Port            string        // Server listen port
	ReadTimeout     time.Duration // HTTP read timeout
	WriteTimeout    time.Duration // HTTP write timeout
	IdleTimeout     time.Duration // HTTP idle timeout
}

type Config struct {
	AppName      string
	API          API
	DB           DB
	NSQ          NSQ
	Store        Store
	Worker       Worker
	FakeReceiver FakeReceiver
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseDeferSchedule(schedule string) []time.Duration {
	def := []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour, 12 * time.Hour}
	if schedule == "" {
		return def
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		// Fallback to default if parsing failed
		return def
	}
	return durations
}

func FromEnv() Config {
	return Config{
		AppName: getenv("APP_NAME", "harbormail"),
		API: API{
			Host:         getenv("API_HOST", ""),
			Port:         getenv("API_PORT", "12080"),
			User:         getenv("API_USER", "harbormail"),
			Pass:         getenv("API_PASS", "secret"),
			ReadTimeout:  getenvDuration("API_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getenvDuration("API_WRITE_TIMEOUT", 5*time.Minute),
		},
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "harbormail"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:   getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			OutcomesTopic: getenv("NSQ_OUTCOMES_TOPIC", "delivery_outcomes"),
			PublishEvents: getenvBool("PUBLISH_OUTCOME_EVENTS", false),
		},
		Store: Store{
			Dir: getenv("STORE_DIR", "/var/spool/harbormail"),
		},
		Worker: Worker{
			APIBase:       getenv("WORKER_API_BASE", "http://localhost:12080"),
			Zone:          getenv("WORKER_ZONE", "default"),
			ClientID:      getenv("WORKER_CLIENT_ID", "default-worker"),
			RelayURL:      getenv("WORKER_RELAY_URL", "http://localhost:8081/relay"),
			PollInterval:  getenvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
			DeferSchedule: parseDeferSchedule(getenv("WORKER_DEFER_SCHEDULE", "")),
			HTTPPort:      ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:      getenvInt("FAIL_FIRST_N", 0),
			ResponseDelayMS: getenvInt("RESPONSE_DELAY_MS", 0),
			Port:            getenv("FAKE_RECEIVER_PORT", ":8081"),
			ReadTimeout:     getenvDuration("FAKE_RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getenvDuration("FAKE_RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getenvDuration("FAKE_RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}

// ListenAddr joins the API host and port into a net listen address.
func (c Config) ListenAddr() string {
	return c.API.Host + ":" + c.API.Port
}
