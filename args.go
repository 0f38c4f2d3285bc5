package main

import (
	"flag"
	"fmt"
	"net"
	"path/filepath"
)

// Args are command line arguments.
type Args struct {
	ConfigFile string
	ListenHost string
	ListenPort string
	ServerName string
	ServerInfo string
}

func getArgs() (Args, error) {
	configFile := flag.String("config", "", "Configuration file.")
	listen := flag.String("listen", "", "Address to listen on (host:port).")
	name := flag.String("name", "", "Server name.")
	info := flag.String("info", "", "Server info line.")

	flag.Parse()

	args := Args{
		ServerName: *name,
		ServerInfo: *info,
	}

	if len(*configFile) == 0 && len(*listen) == 0 {
		flag.PrintDefaults()
		return Args{}, fmt.Errorf("you must provide a configuration file or a listen address")
	}

	if len(*configFile) > 0 {
		configPath, err := filepath.Abs(*configFile)
		if err != nil {
			return Args{}, fmt.Errorf("unable to determine absolute path to config file: %s: %s",
				*configFile, err)
		}
		args.ConfigFile = configPath
	}

	if len(*listen) > 0 {
		host, port, err := net.SplitHostPort(*listen)
		if err != nil {
			return Args{}, fmt.Errorf("invalid listen address: %s: %s", *listen, err)
		}
		args.ListenHost = host
		args.ListenPort = port
	}

	return args, nil
}
