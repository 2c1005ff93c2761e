package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type AdminKey struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
}

type Admin struct {
	Header string     `yaml:"header"`
	Keys   []AdminKey `yaml:"keys"`
}

type Tier struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	RequestsPerHour   int `yaml:"requests_per_hour"`
}

type Limits struct {
	Standard             Tier `yaml:"standard"`
	Premium              Tier `yaml:"premium"`
	Global               Tier `yaml:"global"`
	BanDurationMinutes   int  `yaml:"ban_duration_minutes"`
	SweepIntervalMinutes int  `yaml:"sweep_interval_minutes"`
}

type Root struct {
	Server         Server        `yaml:"server"`
	Observability  Observability `yaml:"observability"`
	Admin          Admin         `yaml:"admin"`
	Limits         Limits        `yaml:"limits"`
	PremiumCallers []string      `yaml:"premium_callers"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 64 << 10
	}
	return s.MaxBodyBytes
} // default 64KB, admission payloads are tiny

func (l Limits) BanDuration() time.Duration {
	if l.BanDurationMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(l.BanDurationMinutes) * time.Minute
}

func (l Limits) SweepInterval() time.Duration {
	if l.SweepIntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(l.SweepIntervalMinutes) * time.Minute
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Admin.Header == "" {
		cfg.Admin.Header = "X-Admin-Key"
	}
	if cfg.Limits.Standard.RequestsPerMinute <= 0 {
		cfg.Limits.Standard.RequestsPerMinute = 10
	}
	if cfg.Limits.Standard.RequestsPerHour <= 0 {
		cfg.Limits.Standard.RequestsPerHour = 100
	}
	if cfg.Limits.Premium.RequestsPerMinute <= 0 {
		cfg.Limits.Premium.RequestsPerMinute = 30
	}
	if cfg.Limits.Premium.RequestsPerHour <= 0 {
		cfg.Limits.Premium.RequestsPerHour = 300
	}
	if cfg.Limits.Global.RequestsPerMinute <= 0 {
		cfg.Limits.Global.RequestsPerMinute = 60
	}
	if cfg.Limits.Global.RequestsPerHour <= 0 {
		cfg.Limits.Global.RequestsPerHour = 1000
	}

	// secrets stay out of the yaml file; .env / environment adds one key
	if sec := os.Getenv("BOTGATE_ADMIN_SECRET"); sec != "" {
		cfg.Admin.Keys = append(cfg.Admin.Keys, AdminKey{ID: "env", Secret: sec})
	}

	return &cfg, nil
}
