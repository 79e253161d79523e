package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailblast/blast"
	"github.com/pure-golang/mailblast/mail"
	"github.com/pure-golang/mailblast/mail/compose"
)

const (
	localityAuto   = "auto"
	localityLocal  = "local"
	localityPublic = "public"
)

// buildPlan turns the send config into a validated plan.
func buildPlan(ctx context.Context, c SendConfig, resolver blast.Resolver) (blast.Plan, error) {
	accounts, err := blast.NewAccounts(c.From, c.Passwords, c.Servers)
	if err != nil {
		return blast.Plan{}, err
	}

	concurrency, err := concurrency(ctx, c, accounts, resolver)
	if err != nil {
		return blast.Plan{}, err
	}

	payload, err := buildPayload(c, accounts[0].Address)
	if err != nil {
		return blast.Plan{}, err
	}

	plan := blast.Plan{
		Accounts:     accounts,
		Recipients:   c.To,
		Total:        c.Amount,
		Concurrency:  concurrency,
		RetryCeiling: c.MaxRetries,
		Message: &mail.Message{
			DisplayFrom: c.DisplayFrom,
			Payload:     payload,
			Numbered:    c.Numbered,
		},
	}
	return plan, plan.Validate()
}

func concurrency(ctx context.Context, c SendConfig, accounts []mail.Account, resolver blast.Resolver) (blast.Concurrency, error) {
	if c.Auto {
		local, err := locality(ctx, c.Locality, accounts, resolver)
		if err != nil {
			return blast.Concurrency{}, err
		}
		return blast.RecommendFor(c.Amount, local), nil
	}

	mode, err := blast.ParseMode(c.Mode)
	if err != nil {
		return blast.Concurrency{}, err
	}
	reconnect, err := blast.ParseReconnectPolicy(c.Reconnect)
	if err != nil {
		return blast.Concurrency{}, err
	}
	return blast.Concurrency{
		Mode:      mode,
		Workers:   c.Workers,
		Delay:     c.Delay,
		Reconnect: reconnect,
		Every:     c.Every,
	}, nil
}

// locality reports whether every account server is local.
func locality(ctx context.Context, mode string, accounts []mail.Account, resolver blast.Resolver) (bool, error) {
	switch mode {
	case localityLocal:
		return true, nil
	case localityPublic:
		return false, nil
	case localityAuto, "":
	default:
		return false, errors.Errorf("unknown locality %q, want auto, local or public", mode)
	}

	for _, a := range accounts {
		local, err := blast.IsLocal(ctx, a.Server, resolver)
		if err != nil {
			return false, errors.Wrap(err, "pass --local or --public")
		}
		if !local {
			return false, nil
		}
	}
	return true, nil
}

func buildPayload(c SendConfig, defaultFrom string) ([]byte, error) {
	content := compose.Content{
		From:    c.DisplayFrom,
		To:      c.To,
		Subject: c.Subject,
		Text:    c.Body,
	}
	if content.From == "" {
		content.From = defaultFrom
	}
	if c.BodyFile != "" {
		b, err := os.ReadFile(c.BodyFile) // #nosec G304 -- path is supplied by the operator
		if err != nil {
			return nil, errors.Wrap(err, "failed to read body")
		}
		content.Text = string(b)
	}
	if c.HTMLFile != "" {
		b, err := os.ReadFile(c.HTMLFile) // #nosec G304 -- path is supplied by the operator
		if err != nil {
			return nil, errors.Wrap(err, "failed to read html body")
		}
		content.HTML = string(b)
	}
	for _, path := range c.Attachments {
		a, err := compose.LoadAttachment(path)
		if err != nil {
			return nil, err
		}
		content.Attachments = append(content.Attachments, a)
	}
	return compose.Build(content)
}
