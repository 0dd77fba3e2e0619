package worker

import (
	"testing"

	"github.com/sashimi3433/Attendance-Check/config"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		redis    string
		inServer bool
	}{
		{name: "default postgres without redis", driver: config.DriverPostgres, inServer: true},
		{name: "memory store", driver: config.DriverMemory, redis: "localhost:6379", inServer: true},
		{name: "memory store without redis", driver: config.DriverMemory, inServer: true},
		{name: "postgres with redis", driver: config.DriverPostgres, redis: "localhost:6379", inServer: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Database: config.DatabaseConfig{Driver: tt.driver},
				Redis:    config.RedisConfig{Addr: tt.redis},
			}
			p := Plan(cfg)
			if p.InServer != tt.inServer || p.Queued == tt.inServer {
				t.Fatalf("Plan = %+v, want in-server %v", p, tt.inServer)
			}
			if p.Reason == "" {
				t.Fatal("empty reason")
			}
		})
	}
}

func TestPlanDefaultConfigRunsMaintenance(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("REDIS_ADDR", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p := Plan(cfg); !p.InServer && !p.Queued {
		t.Fatalf("default config runs no maintenance: %+v", p)
	}
}
