package config

import "time"

type Config struct {
	Log     Log
	Web     Web
	Gateway Gateway
	Catalog Catalog
	Storage Storage
	Session Session
	Rate    Rate
	Cors    struct {
		Origin string
	}
}

// Log sets the logrus level (panic through trace) and output format.
type Log struct {
	Level string `conf:"default:info"`
	JSON  bool   `conf:"default:false"`
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:3000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:70s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

// Gateway configures the outbound client of the healthcare-service backend.
// Web.WriteTimeout must exceed twice Timeout: a payment request chains into a
// booking call.
type Gateway struct {
	URL     string        `conf:"default:http://localhost:8080/api"`
	Timeout time.Duration `conf:"default:30s"`
	Breaker Breaker
}

type Breaker struct {
	Enabled          bool          `conf:"default:true"`
	FailureThreshold uint32        `conf:"default:5"`
	MaxRequests      uint32        `conf:"default:1"`
	Interval         time.Duration `conf:"default:60s"`
	Timeout          time.Duration `conf:"default:30s"`
}

// Catalog selects where service offerings are loaded from: static, http or postgres.
type Catalog struct {
	Source          string        `conf:"default:static"`
	DSN             string        `conf:"mask"`
	RefreshInterval time.Duration `conf:"default:5m"`
}

// Storage selects the persistent store backend: bolt or redis.
type Storage struct {
	Driver   string        `conf:"default:bolt"`
	Path     string        `conf:"default:storefront.db"`
	RedisURL string        `conf:"default:redis://localhost:6379/0,mask"`
	CartTTL  time.Duration `conf:"default:168h"`
}

type Session struct {
	Lifetime    time.Duration `conf:"default:24h"`
	IdleTimeout time.Duration `conf:"default:2h"`
	Secure      bool          `conf:"default:false"`
}

type Rate struct {
	Burst  int           `conf:"default:20"`
	Every  time.Duration `conf:"default:100ms"`
	Expiry time.Duration `conf:"default:10m"`
}
