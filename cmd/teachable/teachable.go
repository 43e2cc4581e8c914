package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/teachable/server"
)

func main() {
	parser := argparse.NewParser("teachable", "Label video frames by example, and classify the rest with k-NN")
	configFile := parser.String("c", "config", &argparse.Options{Help: "JSON config file", Default: ""})
	listen := parser.String("l", "listen", &argparse.Options{Help: "HTTP listen address (overrides the config file)", Default: ""})
	video := parser.String("v", "video", &argparse.Options{Help: "Select this stored video at startup", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		panic(err)
	}

	cfg, err := server.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	srv, err := server.NewServer(logger, *cfg)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	if *video != "" {
		if err := srv.SelectVideo(*video); err != nil {
			logger.Errorf("Failed to select video %v: %v", *video, err)
		}
	}

	// Tell systemd that we're alive
	daemon.SdNotify(false, daemon.SdNotifyReady)

	err = srv.ListenHTTP(cfg.Listen)
	logger.Infof("ListenHTTP returned: %v", err)
	// ListenHTTP returns as soon as Shutdown begins
	srv.Shutdown()
	<-srv.ShutdownComplete
}
