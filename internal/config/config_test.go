package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.APIBaseURL != "http://10.0.2.2:8000/api" {
		t.Errorf("APIBaseURL = %q, want default", cfg.APIBaseURL)
	}
	if cfg.Timeout() != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout())
	}
	if cfg.SessionStore != StoreFile {
		t.Errorf("SessionStore = %q, want %q", cfg.SessionStore, StoreFile)
	}
	if cfg.RefreshSkew() != 30*time.Second {
		t.Errorf("RefreshSkew = %v, want 30s", cfg.RefreshSkew())
	}
	if cfg.EventsKafkaTopic != "koursa-events" {
		t.Errorf("EventsKafkaTopic = %q, want koursa-events", cfg.EventsKafkaTopic)
	}
	if cfg.OTelServiceName != "koursa-client" {
		t.Errorf("OTelServiceName = %q, want koursa-client", cfg.OTelServiceName)
	}
	if cfg.JWTIssuer != "koursa-dev" {
		t.Errorf("JWTIssuer = %q, want koursa-dev", cfg.JWTIssuer)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.ValidationTTL() != 5*time.Minute {
		t.Errorf("ValidationTTL = %v, want 5m", cfg.ValidationTTL())
	}
	if cfg.KafkaBrokersList() != nil {
		t.Errorf("KafkaBrokersList = %v, want nil", cfg.KafkaBrokersList())
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("API_BASE_URL", "https://koursa.example.org/api/")
	os.Setenv("API_TIMEOUT", "3s")
	os.Setenv("SESSION_STORE", "Memory")
	os.Setenv("TOKEN_REFRESH_SKEW", "0s")
	os.Setenv("BCRYPT_COST", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIBaseURL != "https://koursa.example.org/api" {
		t.Errorf("APIBaseURL = %q, trailing slash should be trimmed", cfg.APIBaseURL)
	}
	if cfg.Timeout() != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Timeout())
	}
	if cfg.SessionStore != StoreMemory {
		t.Errorf("SessionStore = %q, want memory", cfg.SessionStore)
	}
	if cfg.RefreshSkew() != 0 {
		t.Errorf("RefreshSkew = %v, want 0", cfg.RefreshSkew())
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("BcryptCost = %d, want 10", cfg.BcryptCost)
	}
}

func TestLoad_SessionStore(t *testing.T) {
	testCases := []struct {
		name  string
		store string
		redis string
		err   bool
	}{
		{"file", "file", "", false},
		{"memory", "memory", "", false},
		{"redis with addr", "redis", "localhost:6379", false},
		{"redis without addr", "redis", "", true},
		{"unknown", "sqlite", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("SESSION_STORE", tc.store)
			if tc.redis != "" {
				os.Setenv("REDIS_ADDR", tc.redis)
			}
			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				if cfg != nil {
					t.Error("Load should return nil config on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
		})
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestDurations_InvalidFallBack(t *testing.T) {
	cfg := &Config{
		APITimeout:         "soon",
		TokenRefreshSkew:   "-1s",
		JWTAccessTTL:       "0",
		JWTRefreshTTL:      "-1h",
		ValidationTokenTTL: "x",
	}
	if cfg.Timeout() != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout())
	}
	if cfg.RefreshSkew() != 30*time.Second {
		t.Errorf("RefreshSkew = %v", cfg.RefreshSkew())
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v", cfg.RefreshTTL())
	}
	if cfg.ValidationTTL() != 5*time.Minute {
		t.Errorf("ValidationTTL = %v", cfg.ValidationTTL())
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{EventsKafkaBrokers: " a:9092, ,b:9092 "}
	want := []string{"a:9092", "b:9092"}
	if got := cfg.KafkaBrokersList(); !reflect.DeepEqual(got, want) {
		t.Errorf("KafkaBrokersList = %v, want %v", got, want)
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should yield nil list")
	}
}
