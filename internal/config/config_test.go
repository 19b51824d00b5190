package config

import (
	"reflect"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"APP_NAME", "API_PORT", "API_WRITE_TIMEOUT", "PUBLISH_OUTCOME_EVENTS"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.AppName != "harbormail" {
		t.Errorf("AppName = %q, want harbormail", cfg.AppName)
	}
	if cfg.API.Port != "12080" {
		t.Errorf("API.Port = %q, want 12080", cfg.API.Port)
	}
	if cfg.API.WriteTimeout != 5*time.Minute {
		t.Errorf("API.WriteTimeout = %v, want 5m", cfg.API.WriteTimeout)
	}
	if cfg.NSQ.PublishEvents {
		t.Errorf("NSQ.PublishEvents defaults to true, want false")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("API_HOST", "10.0.0.5")
	t.Setenv("API_PORT", "9999")
	t.Setenv("API_READ_TIMEOUT", "45s")
	t.Setenv("PUBLISH_OUTCOME_EVENTS", "true")
	t.Setenv("WORKER_ZONE", "bulk")

	cfg := FromEnv()
	if cfg.API.Host != "10.0.0.5" || cfg.API.Port != "9999" {
		t.Errorf("API address = %q:%q", cfg.API.Host, cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 45*time.Second {
		t.Errorf("API.ReadTimeout = %v, want 45s", cfg.API.ReadTimeout)
	}
	if !cfg.NSQ.PublishEvents {
		t.Errorf("PUBLISH_OUTCOME_EVENTS=true not picked up")
	}
	if cfg.Worker.Zone != "bulk" {
		t.Errorf("Worker.Zone = %q, want bulk", cfg.Worker.Zone)
	}
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("API_READ_TIMEOUT", "soon")
	t.Setenv("FAIL_FIRST_N", "many")

	cfg := FromEnv()
	if cfg.API.ReadTimeout != 30*time.Second {
		t.Errorf("invalid duration did not fall back: %v", cfg.API.ReadTimeout)
	}
	if cfg.FakeReceiver.FailFirstN != 0 {
		t.Errorf("invalid int did not fall back: %d", cfg.FakeReceiver.FailFirstN)
	}
}

func TestParseDeferSchedule(t *testing.T) {
	def := []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour, 12 * time.Hour}

	tests := []struct {
		name string
		in   string
		want []time.Duration
	}{
		{"empty uses default", "", def},
		{"explicit schedule", "30s,2m,1h", []time.Duration{30 * time.Second, 2 * time.Minute, time.Hour}},
		{"spaces tolerated", " 1m , 5m ", []time.Duration{time.Minute, 5 * time.Minute}},
		{"bad entries skipped", "1m,soon,5m", []time.Duration{time.Minute, 5 * time.Minute}},
		{"all bad uses default", "soon,later", def},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDeferSchedule(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseDeferSchedule(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := Config{DB: DB{User: "u", Pass: "p", Host: "db", Port: "5432", Name: "mail"}}
	want := "postgres://u:p@db:5432/mail?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Config{API: API{Host: "", Port: "12080"}}
	if got := cfg.ListenAddr(); got != ":12080" {
		t.Errorf("ListenAddr() = %q, want :12080", got)
	}
	cfg.API.Host = "127.0.0.1"
	if got := cfg.ListenAddr(); got != "127.0.0.1:12080" {
		t.Errorf("ListenAddr() = %q, want 127.0.0.1:12080", got)
	}
}
