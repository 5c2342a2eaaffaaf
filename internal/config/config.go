package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Tracer      *TracerConfig
	Worker      *WorkerConfig
	Presence    *PresenceConfig
	Logger      *LoggerConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Addr string
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type TracerConfig struct {
	Address string
	Enabled bool
}

type WorkerConfig struct {
	EventGroup string
	SeenCache  int
}

type PresenceConfig struct {
	TTL               time.Duration
	HeartbeatInterval time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}
