package main

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"clipnote/internal/api"
	"clipnote/internal/config"
)

type commandContext struct {
	addressFlag *string
	configFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(addressFlag, configFlag *string) *commandContext {
	return &commandContext{
		addressFlag: addressFlag,
		configFlag:  configFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// client builds an API client from the --address flag, falling back to the
// configured bind address.
func (c *commandContext) client() (*api.Client, error) {
	address := ""
	token := ""
	if c.addressFlag != nil {
		address = strings.TrimSpace(*c.addressFlag)
	}
	cfg, err := c.ensureConfig()
	if err != nil && address == "" {
		return nil, err
	}
	if cfg != nil {
		token = cfg.Paths.APIToken
		if address == "" {
			address = cfg.Paths.APIBind
		}
	}
	if address == "" {
		return nil, fmt.Errorf("no daemon address configured; pass --address or set paths.api_bind")
	}
	return api.NewClient("http://"+normalizeAddress(address), token), nil
}

// normalizeAddress resolves wildcard binds like ":8080" to a dialable host.
func normalizeAddress(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
