package rabbitmq

type Config struct {
	URL          string `envconfig:"RABBITMQ_URL" required:"true"`
	Exchange     string `envconfig:"RABBITMQ_EXCHANGE" default:"mailblast"`
	ExchangeKind string `envconfig:"RABBITMQ_EXCHANGE_KIND" default:"topic"` // empty skips the declaration
	RoutingKey   string `envconfig:"RABBITMQ_ROUTING_KEY" default:"mailblast.progress"`
}
