package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/boxcat/ircd/internal/config"
	"github.com/boxcat/ircd/internal/ircd"
)

// args are the command line arguments this binary accepts.
type args struct {
	ConfigFile string
	ServerName string
	Debug      bool
}

func getArgs() (*args, error) {
	configFile := flag.String("conf", "", "Configuration file.")
	serverName := flag.String("server-name", "", "Server name. Overrides server-name from config.")
	debug := flag.Bool("debug", false, "Enable debug level logging.")

	flag.Parse()

	if len(*configFile) == 0 {
		flag.PrintDefaults()
		return nil, fmt.Errorf("you must provide a configuration file")
	}

	configPath, err := filepath.Abs(*configFile)
	if err != nil {
		return nil, fmt.Errorf("unable to determine path to the configuration file: %s", err)
	}

	return &args{ConfigFile: configPath, ServerName: *serverName, Debug: *debug}, nil
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	a, err := getArgs()
	if err != nil {
		log.WithError(err).Fatal("bad arguments")
	}

	if a.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(a.ConfigFile)
	if err != nil {
		log.WithError(err).Fatal("unable to load configuration")
	}

	if a.ServerName != "" {
		cfg.ServerName = a.ServerName
	}

	reg := ircd.NewRegistry(log)
	srv := ircd.NewServer(reg, cfg, log)

	log.WithFields(logrus.Fields{
		"server_name": cfg.ServerName,
		"listen":      cfg.InsecureListenAddress,
	}).Info("starting")

	if err := srv.Serve(); err != nil {
		log.WithError(err).Fatal("server exited with error")
	}

	log.Info("server shutdown cleanly")
	os.Exit(0)
}
