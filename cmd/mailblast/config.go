package main

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/pure-golang/mailblast/env"
	"github.com/pure-golang/mailblast/executor/cli"
	"github.com/pure-golang/mailblast/httpserver/std"
	"github.com/pure-golang/mailblast/kv"
	"github.com/pure-golang/mailblast/logger"
	"github.com/pure-golang/mailblast/mail/smtp"
	"github.com/pure-golang/mailblast/metrics"
	"github.com/pure-golang/mailblast/queue/kafka"
	"github.com/pure-golang/mailblast/queue/rabbitmq"
	"github.com/pure-golang/mailblast/sinks"
	"github.com/pure-golang/mailblast/tracing/jaeger"
)

// SendConfig describes one batch. List values are comma separated.
type SendConfig struct {
	From        []string      `envconfig:"MAILBLAST_FROM"`
	Passwords   []string      `envconfig:"MAILBLAST_PASSWORDS"`
	Servers     []string      `envconfig:"MAILBLAST_SERVERS"`
	To          []string      `envconfig:"MAILBLAST_TO"`
	DisplayFrom string        `envconfig:"MAILBLAST_DISPLAY_FROM"`
	Subject     string        `envconfig:"MAILBLAST_SUBJECT"`
	Body        string        `envconfig:"MAILBLAST_BODY"`
	BodyFile    string        `envconfig:"MAILBLAST_BODY_FILE"`
	HTMLFile    string        `envconfig:"MAILBLAST_HTML_FILE"`
	Attachments []string      `envconfig:"MAILBLAST_ATTACHMENTS"`
	Amount      int           `envconfig:"MAILBLAST_AMOUNT" default:"1"`
	Mode        string        `envconfig:"MAILBLAST_MODE" default:"serial"`
	Workers     int           `envconfig:"MAILBLAST_WORKERS" default:"1"`
	Delay       time.Duration `envconfig:"MAILBLAST_DELAY" default:"0s"`
	Reconnect   string        `envconfig:"MAILBLAST_RECONNECT" default:"once"`
	Every       int           `envconfig:"MAILBLAST_EVERY" default:"100"`
	MaxRetries  int           `envconfig:"MAILBLAST_MAX_RETRIES" default:"3"`
	Auto        bool          `envconfig:"MAILBLAST_AUTO" default:"false"`
	Locality    string        `envconfig:"MAILBLAST_LOCALITY" default:"auto"` // auto, local or public
	Numbered    bool          `envconfig:"MAILBLAST_NUMBERED" default:"false"`
	DryRun      bool          `envconfig:"MAILBLAST_DRY_RUN" default:"false"`
	Progress    time.Duration `envconfig:"MAILBLAST_PROGRESS_INTERVAL" default:"5s"`
}

// Config is everything the send command reads from the environment.
type Config struct {
	Logger   logger.Config
	SMTP     smtp.Config
	Metrics  metrics.Config
	Tracing  jaeger.Config
	Control  std.Config
	Sinks    sinks.Config
	KV       kv.Config
	Hook     cli.Config
	RabbitMQ rabbitmq.Config
	Kafka    kafka.Config
	Send     SendConfig
}

func loadConfig() (Config, error) {
	var c Config
	if err := env.InitConfig(&c.Logger, &c.SMTP, &c.Metrics, &c.Tracing, &c.Control, &c.Sinks, &c.Hook, &c.Send); err != nil {
		return c, err
	}
	if c.Sinks.KV {
		if err := env.InitConfig(&c.KV); err != nil {
			return c, err
		}
	}
	switch c.Sinks.Queue {
	case sinks.QueueRabbitMQ:
		if err := env.InitConfig(&c.RabbitMQ); err != nil {
			return c, err
		}
	case sinks.QueueKafka:
		if err := env.InitConfig(&c.Kafka); err != nil {
			return c, err
		}
	}
	return c, nil
}

// sendFlags override the environment for the fields operators change most.
type sendFlags struct {
	from, to, servers, passwords, attachments []string
	displayFrom, subject, body, bodyFile      string
	htmlFile, mode, reconnect                 string
	amount, workers, every, maxRetries        int
	delay                                     time.Duration
	auto, local, public, numbered, dryRun     bool
}

func (f *sendFlags) register(fs *pflag.FlagSet) {
	fs.StringSliceVar(&f.from, "from", nil, "sender account addresses")
	fs.StringSliceVar(&f.passwords, "password", nil, "account passwords, padded with the last one")
	fs.StringSliceVar(&f.servers, "server", nil, "account SMTP servers (host[:port]), padded with the last one")
	fs.StringSliceVar(&f.to, "to", nil, "recipients of every copy")
	fs.StringVar(&f.displayFrom, "display-from", "", "From header, defaults to the first account")
	fs.StringVar(&f.subject, "subject", "", "message subject")
	fs.StringVar(&f.body, "body", "", "plain text body")
	fs.StringVar(&f.bodyFile, "body-file", "", "read the plain text body from a file")
	fs.StringVar(&f.htmlFile, "html-file", "", "read an HTML alternative from a file")
	fs.StringSliceVar(&f.attachments, "attach", nil, "files to attach")
	fs.IntVarP(&f.amount, "amount", "n", 1, "copies per account")
	fs.StringVar(&f.mode, "mode", "serial", "serial, limited or unlimited")
	fs.IntVar(&f.workers, "workers", 1, "workers per account in limited mode")
	fs.DurationVar(&f.delay, "delay", 0, "pause between sends in serial mode")
	fs.StringVar(&f.reconnect, "reconnect", "once", "once, per_send or every_n")
	fs.IntVar(&f.every, "every", 100, "sends per connection for every_n")
	fs.IntVar(&f.maxRetries, "max-retries", 3, "reconnects per worker after a disconnect")
	fs.BoolVar(&f.auto, "auto", false, "let the advisor choose the concurrency")
	fs.BoolVar(&f.local, "local", false, "treat the servers as local for --auto")
	fs.BoolVar(&f.public, "public", false, "treat the servers as public for --auto")
	fs.BoolVar(&f.numbered, "numbered", false, "replace {num} in the message with the send number")
	fs.BoolVar(&f.dryRun, "dry-run", false, "accept every send without connecting")
}

func (f *sendFlags) apply(fs *pflag.FlagSet, c *SendConfig) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("from", func() { c.From = f.from })
	set("password", func() { c.Passwords = f.passwords })
	set("server", func() { c.Servers = f.servers })
	set("to", func() { c.To = f.to })
	set("display-from", func() { c.DisplayFrom = f.displayFrom })
	set("subject", func() { c.Subject = f.subject })
	set("body", func() { c.Body = f.body })
	set("body-file", func() { c.BodyFile = f.bodyFile })
	set("html-file", func() { c.HTMLFile = f.htmlFile })
	set("attach", func() { c.Attachments = f.attachments })
	set("amount", func() { c.Amount = f.amount })
	set("mode", func() { c.Mode = f.mode })
	set("workers", func() { c.Workers = f.workers })
	set("delay", func() { c.Delay = f.delay })
	set("reconnect", func() { c.Reconnect = f.reconnect })
	set("every", func() { c.Every = f.every })
	set("max-retries", func() { c.MaxRetries = f.maxRetries })
	set("auto", func() { c.Auto = f.auto })
	if f.local {
		c.Locality = localityLocal
	}
	if f.public {
		c.Locality = localityPublic
	}
	set("numbered", func() { c.Numbered = f.numbered })
	set("dry-run", func() { c.DryRun = f.dryRun })
}
