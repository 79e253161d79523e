package smtp

import "time"

// Config contains SMTP session parameters shared by all accounts.
// Server addresses and credentials come from the accounts themselves.
type Config struct {
	Port           int           `envconfig:"SMTP_PORT" default:"587"`       // used when the account server has no port
	LocalName      string        `envconfig:"SMTP_HELO" default:"localhost"` // name sent in EHLO/HELO
	TLS            bool          `envconfig:"SMTP_TLS" default:"true"`       // upgrade with STARTTLS when advertised
	Insecure       bool          `envconfig:"SMTP_INSECURE" default:"false"` // skip certificate verification
	Auth           bool          `envconfig:"SMTP_AUTH" default:"true"`      // log in when AUTH is advertised
	DialTimeout    time.Duration `envconfig:"SMTP_DIAL_TIMEOUT" default:"30s"`
	DialAttempts   int           `envconfig:"SMTP_DIAL_ATTEMPTS" default:"1"`  // TCP connect attempts per Dial
	DialInterval   time.Duration `envconfig:"SMTP_DIAL_INTERVAL" default:"2s"` // pause between connect attempts
	CommandTimeout time.Duration `envconfig:"SMTP_COMMAND_TIMEOUT" default:"5m"`
}
