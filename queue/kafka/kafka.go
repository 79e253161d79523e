package kafka

import "time"

type Config struct {
	Brokers     []string      `envconfig:"KAFKA_BROKERS" required:"true"`
	Topic       string        `envconfig:"KAFKA_TOPIC" default:"mailblast.progress"`
	DialTimeout time.Duration `envconfig:"KAFKA_DIAL_TIMEOUT" default:"10s"`
	MaxAttempts int           `envconfig:"KAFKA_MAX_ATTEMPTS" default:"3"`
}
