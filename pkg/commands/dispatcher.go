// Package commands issues point mutations against the detection API and
// invalidates the pollers whose resources they change.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/hervehildenbrand/ddos-radar/pkg/fetcher"
	"github.com/hervehildenbrand/ddos-radar/pkg/models"
)

var (
	// ErrInvalidIP is returned when an unblock target is not an IP address.
	ErrInvalidIP = errors.New("commands: invalid IP address")
	// ErrUnknownSection is returned for a settings section other than
	// profile, website or alerts.
	ErrUnknownSection = errors.New("commands: unknown settings section")
)

// Refresher is implemented by pollers. Refresh must discard any in-flight
// response and fetch again promptly.
type Refresher interface {
	Refresh()
}

// Targets are the pollers invalidated after a mutation. Nil entries are skipped.
type Targets struct {
	Blacklist Refresher
	Traffic   Refresher
	Settings  Refresher
}

// SaveResult is the server's canonical settings after a save.
type SaveResult struct {
	Settings models.Settings `json:"settings"`
	// ResolvedIP is the origin IP for the website URL, empty when no URL is
	// set or resolution failed.
	ResolvedIP string `json:"resolved_ip,omitempty"`
}

// Dispatcher is stateless apart from its clients.
type Dispatcher struct {
	api      *fetcher.Client
	settings *fetcher.Client
	targets  Targets
}

// NewDispatcher creates a dispatcher. settings may be nil when the settings
// service shares the API's base URL.
func NewDispatcher(api, settings *fetcher.Client, targets Targets) *Dispatcher {
	if settings == nil {
		settings = api
	}
	return &Dispatcher{api: api, settings: settings, targets: targets}
}

// UnblockIP removes ip from the blacklist, then re-polls the blacklist and
// the traffic log so reclassification does not wait for the next tick.
func (d *Dispatcher) UnblockIP(ctx context.Context, ip string) error {
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}

	if err := d.api.Do(ctx, fetcher.Unblock(ip), nil); err != nil {
		return fmt.Errorf("unblock %s: %w", ip, err)
	}
	log.Printf("[commands] Unblocked %s", ip)

	refresh(d.targets.Blacklist)
	refresh(d.targets.Traffic)
	return nil
}

// SaveSettings writes one section of s, then re-fetches the full settings
// document. When a website URL is configured it is resolved to the origin IP.
// A failed resolution is logged and does not fail the save.
func (d *Dispatcher) SaveSettings(ctx context.Context, section string, s models.Settings) (SaveResult, error) {
	update, err := BuildUpdate(section, s)
	if err != nil {
		return SaveResult{}, err
	}

	if err := d.settings.Do(ctx, fetcher.UpdateSettings(update), nil); err != nil {
		return SaveResult{}, fmt.Errorf("save %s settings: %w", section, err)
	}

	var result SaveResult
	if err := d.settings.Do(ctx, fetcher.Settings, &result.Settings); err != nil {
		return SaveResult{}, fmt.Errorf("reload settings: %w", err)
	}
	refresh(d.targets.Settings)

	if u := strings.TrimSpace(result.Settings.Website.URL); u != "" {
		ip, err := d.ResolveIP(ctx, u)
		if err != nil {
			log.Printf("[commands] Warning: could not resolve %s: %v", u, err)
		} else {
			result.ResolvedIP = ip
		}
	}
	return result, nil
}

// ResolveIP asks the server for the IP address behind siteURL.
func (d *Dispatcher) ResolveIP(ctx context.Context, siteURL string) (string, error) {
	var reply models.ResolveIPReply
	if err := d.settings.Do(ctx, fetcher.ResolveIP(siteURL), &reply); err != nil {
		return "", fmt.Errorf("resolve %s: %w", siteURL, err)
	}
	return reply.IPAddress, nil
}

// BuildUpdate selects the fields of one settings section.
func BuildUpdate(section string, s models.Settings) (models.SettingsUpdate, error) {
	switch section {
	case models.SectionProfile:
		return models.SettingsUpdate{
			Username:    &s.Profile.Name,
			Email:       &s.Profile.Email,
			PhoneNumber: &s.Profile.Phone,
		}, nil
	case models.SectionWebsite:
		return models.SettingsUpdate{
			WebsiteURL:    &s.Website.URL,
			DDoSThreshold: &s.Advanced.DDoSThreshold,
		}, nil
	case models.SectionAlerts:
		return models.SettingsUpdate{
			EmailAlerts: &s.Alerts.EmailAlerts,
			PhoneAlerts: &s.Alerts.PhoneAlerts,
		}, nil
	}
	return models.SettingsUpdate{}, fmt.Errorf("%w: %q", ErrUnknownSection, section)
}

func refresh(r Refresher) {
	if r != nil {
		r.Refresh()
	}
}
