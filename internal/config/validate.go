package config

import (
	"errors"
	"fmt"
	"strings"

	"conveyor/internal/tenant"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTenancy(); err != nil {
		return err
	}
	if err := c.validateBus(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTenancy() error {
	if _, err := tenant.ParseFilter(c.Tenancy.Tenants); err != nil {
		return fmt.Errorf("tenancy.tenants: %w", err)
	}
	return nil
}

func (c *Config) validateBus() error {
	if strings.TrimSpace(c.Bus.Stream) == "" {
		return errors.New("bus.stream must be set")
	}
	if strings.TrimSpace(c.Bus.Group) == "" {
		return errors.New("bus.group must be set")
	}
	return nil
}

// TenantFilter returns the validated tenant scope for this deployment.
func (c *Config) TenantFilter() tenant.Filter {
	filter, err := tenant.ParseFilter(c.Tenancy.Tenants)
	if err != nil {
		// Validate rejects bad filters before the config is handed out.
		return tenant.MatchAll()
	}
	return filter
}
