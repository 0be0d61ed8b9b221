package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/logbook/internal/errors"
	"github.com/tphakala/logbook/internal/logger"
)

// ShoutrrrProvider sends notifications through one or more shoutrrr
// service URLs.
type ShoutrrrProvider struct {
	name    string
	urls    []string
	types   []Type
	timeout time.Duration
	sender  *router.ServiceRouter
}

// NewShoutrrrProvider builds a provider for urls. An empty types list
// accepts every notification type.
func NewShoutrrrProvider(name string, urls []string, types []Type, timeout time.Duration) (*ShoutrrrProvider, error) {
	p := &ShoutrrrProvider{
		name:    name,
		urls:    slices.Clone(urls),
		types:   slices.Clone(types),
		timeout: timeout,
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	sender, err := shoutrrr.CreateSender(p.urls...)
	if err != nil {
		return nil, p.configError(err)
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	if timeout > 0 {
		sender.Timeout = timeout
	}
	p.sender = sender
	return p, nil
}

func (p *ShoutrrrProvider) GetName() string { return p.name }

// ValidateConfig checks that every URL parses into a known service.
func (p *ShoutrrrProvider) ValidateConfig() error {
	if len(p.urls) == 0 {
		return errors.Newf("shoutrrr provider %q has no URLs", p.name).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := shoutrrr.CreateSender(p.urls...); err != nil {
		return p.configError(err)
	}
	return nil
}

func (p *ShoutrrrProvider) configError(err error) error {
	// URLs carry tokens, keep them out of the error text
	return errors.Newf("invalid shoutrrr configuration for %q: %s", p.name, logger.RedactSensitiveData(err.Error())).
		Component("notification").
		Category(errors.CategoryConfiguration).
		Context("provider", p.name).
		Build()
}

func (p *ShoutrrrProvider) SupportsType(t Type) bool {
	return len(p.types) == 0 || slices.Contains(p.types, t)
}

// Send delivers n to every configured URL. Errors from individual
// services are joined.
func (p *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if p.sender == nil {
		return errors.Newf("shoutrrr provider %q is not initialized", p.name).
			Component("notification").
			Category(errors.CategoryState).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	params.SetTitle(n.Title)

	done := make(chan []error, 1)
	go func() {
		done <- p.sender.Send(n.Message, &params)
	}()

	select {
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component("notification").
			Category(errors.CategoryPush).
			Context("provider", p.name).
			Build()
	case errs := <-done:
		var failures []error
		for _, err := range errs {
			if err != nil {
				failures = append(failures, fmt.Errorf("%s", logger.RedactSensitiveData(err.Error())))
			}
		}
		if len(failures) == 0 {
			return nil
		}
		return errors.New(errors.Join(failures...)).
			Component("notification").
			Category(errors.CategoryPush).
			Context("provider", p.name).
			Context("failed_services", len(failures)).
			Build()
	}
}
