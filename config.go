package main

import (
	"fmt"
	"time"

	"github.com/horgh/config"
)

const serverVersion = "1.0.0"

// Config holds the server's configuration.
type Config struct {
	ListenHost  string
	ListenPort  string
	ServerName  string
	ServerInfo  string
	CreatedDate string
	MOTD        string

	// Period of time a connection can be idle before we send it a PING.
	// Idle for another such period after that and we consider it dead.
	PingTime time.Duration

	// Oper name to password.
	Opers map[string]string
}

// loadConfig builds the configuration from the config file, if any, with
// command line arguments taking precedence.
func loadConfig(args Args) (Config, error) {
	c := Config{
		ListenHost:  "0.0.0.0",
		CreatedDate: time.Now().Format("Mon Jan 2 2006"),
		PingTime:    30 * time.Second,
		Opers:       make(map[string]string),
	}

	if len(args.ConfigFile) > 0 {
		if err := c.parseConfigFile(args.ConfigFile); err != nil {
			return Config{}, err
		}
	}

	if len(args.ListenHost) > 0 {
		c.ListenHost = args.ListenHost
	}
	if len(args.ListenPort) > 0 {
		c.ListenPort = args.ListenPort
	}
	if len(args.ServerName) > 0 {
		c.ServerName = args.ServerName
	}
	if len(args.ServerInfo) > 0 {
		c.ServerInfo = args.ServerInfo
	}

	if len(c.ListenPort) == 0 {
		return Config{}, fmt.Errorf("you must specify a port to listen on")
	}
	if len(c.ServerName) == 0 {
		return Config{}, fmt.Errorf("you must specify a server name")
	}
	if len(c.ServerInfo) == 0 {
		return Config{}, fmt.Errorf("you must specify a server info line")
	}

	return c, nil
}

// parseConfigFile reads configuration keys from a key=value file.
func (c *Config) parseConfigFile(file string) error {
	configMap, err := config.ReadStringMap(file)
	if err != nil {
		return err
	}

	if v, ok := configMap["listen-host"]; ok {
		c.ListenHost = v
	}
	if v, ok := configMap["listen-port"]; ok {
		c.ListenPort = v
	}
	if v, ok := configMap["server-name"]; ok {
		c.ServerName = v
	}
	if v, ok := configMap["server-info"]; ok {
		c.ServerInfo = v
	}
	if v, ok := configMap["created-date"]; ok {
		c.CreatedDate = v
	}
	if v, ok := configMap["motd"]; ok {
		c.MOTD = v
	}

	if v, ok := configMap["ping-time"]; ok {
		c.PingTime, err = time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ping time is in invalid format: %s", err)
		}
	}

	// Operator credentials live in their own key=value file.
	if v, ok := configMap["opers-config"]; ok {
		opers, err := config.ReadStringMap(v)
		if err != nil {
			return fmt.Errorf("unable to load opers config: %s", err)
		}
		c.Opers = opers
	}

	return nil
}
