package blast

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/mail"
)

// Mode is the degree of parallelism per account.
type Mode int

const (
	ModeSerial    Mode = iota // one worker
	ModeLimited               // Concurrency.Workers workers
	ModeUnlimited             // one worker per message
)

func (m Mode) String() string {
	switch m {
	case ModeSerial:
		return "serial"
	case ModeLimited:
		return "limited"
	case ModeUnlimited:
		return "unlimited"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts the names printed by Mode.String. "none" is an alias
// for serial.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "serial", "none", "":
		return ModeSerial, nil
	case "limited":
		return ModeLimited, nil
	case "unlimited":
		return ModeUnlimited, nil
	}
	return 0, errors.Errorf("unknown concurrency mode %q", s)
}

// ReconnectPolicy says when a worker replaces a healthy session.
type ReconnectPolicy int

const (
	ReconnectOnce    ReconnectPolicy = iota // reuse one session
	ReconnectPerSend                        // new session for every message
	ReconnectEveryN                         // new session every Concurrency.Every messages
)

func (r ReconnectPolicy) String() string {
	switch r {
	case ReconnectOnce:
		return "once"
	case ReconnectPerSend:
		return "per_send"
	case ReconnectEveryN:
		return "every_n"
	}
	return fmt.Sprintf("ReconnectPolicy(%d)", int(r))
}

func ParseReconnectPolicy(s string) (ReconnectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "once", "":
		return ReconnectOnce, nil
	case "per_send", "per-send":
		return ReconnectPerSend, nil
	case "every_n", "every-n":
		return ReconnectEveryN, nil
	}
	return 0, errors.Errorf("unknown reconnect policy %q", s)
}

// Concurrency describes how one account's share of the batch is sent.
type Concurrency struct {
	Mode      Mode
	Workers   int           // ModeLimited only
	Delay     time.Duration // pause between sends, ModeSerial only
	Reconnect ReconnectPolicy
	Every     int // ReconnectEveryN only
}

// WorkersPer returns the number of workers started for one account.
func (c Concurrency) WorkersPer(total int) int {
	switch c.Mode {
	case ModeLimited:
		return min(c.Workers, total)
	case ModeUnlimited:
		return total
	default:
		return 1
	}
}

func (c Concurrency) String() string {
	var b strings.Builder
	b.WriteString(c.Mode.String())
	if c.Mode == ModeLimited {
		fmt.Fprintf(&b, "(%d)", c.Workers)
	}
	if c.Mode == ModeSerial && c.Delay > 0 {
		fmt.Fprintf(&b, " delay=%s", c.Delay)
	}
	b.WriteString(" reconnect=")
	b.WriteString(c.Reconnect.String())
	if c.Reconnect == ReconnectEveryN {
		fmt.Fprintf(&b, "(%d)", c.Every)
	}
	return b.String()
}

func (c Concurrency) validate() error {
	switch c.Mode {
	case ModeSerial, ModeUnlimited:
	case ModeLimited:
		if c.Workers < 1 {
			return errors.Wrapf(ErrInvalidPlan, "limited mode needs at least one worker, got %d", c.Workers)
		}
	default:
		return errors.Wrapf(ErrInvalidPlan, "unknown mode %d", int(c.Mode))
	}
	if c.Delay < 0 {
		return errors.Wrapf(ErrInvalidPlan, "negative delay %s", c.Delay)
	}
	switch c.Reconnect {
	case ReconnectOnce, ReconnectPerSend:
	case ReconnectEveryN:
		if c.Every < 1 {
			return errors.Wrapf(ErrInvalidPlan, "every_n reconnect needs a positive interval, got %d", c.Every)
		}
	default:
		return errors.Wrapf(ErrInvalidPlan, "unknown reconnect policy %d", int(c.Reconnect))
	}
	return nil
}

// Plan is one send operation. It must not be modified after Submit.
type Plan struct {
	Accounts     []mail.Account
	Recipients   []string
	Total        int // copies per account
	Concurrency  Concurrency
	RetryCeiling int // reconnect attempts per worker
	Message      *mail.Message
}

// Validate reports configuration errors. They wrap ErrInvalidPlan.
func (p Plan) Validate() error {
	if len(p.Accounts) == 0 {
		return errors.Wrap(ErrInvalidPlan, "no accounts")
	}
	for i, a := range p.Accounts {
		if a.Address == "" {
			return errors.Wrapf(ErrInvalidPlan, "account %d has no address", i)
		}
		if a.Server == "" {
			return errors.Wrapf(ErrInvalidPlan, "account %s has no server", a.Address)
		}
	}
	if len(p.Recipients) == 0 {
		return errors.Wrap(ErrInvalidPlan, "no recipients")
	}
	for i, r := range p.Recipients {
		if strings.TrimSpace(r) == "" {
			return errors.Wrapf(ErrInvalidPlan, "recipient %d is empty", i)
		}
	}
	if p.Total < 1 {
		return errors.Wrapf(ErrInvalidPlan, "total must be positive, got %d", p.Total)
	}
	if p.RetryCeiling < 0 {
		return errors.Wrapf(ErrInvalidPlan, "negative retry ceiling %d", p.RetryCeiling)
	}
	if p.Message == nil {
		return errors.Wrap(ErrInvalidPlan, "no message")
	}
	return p.Concurrency.validate()
}

// NewAccounts zips addresses with passwords and servers. Shorter password and
// server lists are padded with their last entry; no passwords means no login.
func NewAccounts(addresses, passwords, servers []string) ([]mail.Account, error) {
	if len(addresses) == 0 {
		return nil, errors.Wrap(ErrInvalidPlan, "no sender addresses")
	}
	if len(servers) == 0 {
		return nil, errors.Wrap(ErrInvalidPlan, "no servers")
	}

	accounts := make([]mail.Account, len(addresses))
	for i, addr := range addresses {
		accounts[i] = mail.Account{
			Address:  strings.TrimSpace(addr),
			Password: padded(passwords, i),
			Server:   strings.TrimSpace(padded(servers, i)),
		}
	}
	return accounts, nil
}

func padded(list []string, i int) string {
	if len(list) == 0 {
		return ""
	}
	if i < len(list) {
		return list[i]
	}
	return list[len(list)-1]
}
