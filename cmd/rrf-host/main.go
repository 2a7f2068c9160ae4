// rrf-host runs the firmware on a host machine: the printer core with
// its G-code dispatcher, temperature and motion layers, an emulated SD
// card on the local filesystem, the RepRap web interface over HTTP,
// and optionally a serial port as the classic host link.
//
// Usage:
//
//	rrf-host [options]
//
// Options:
//
//	-profile string   Board profile YAML (default: built-in Cartesian)
//	-http string      Web interface listen address (default ":8080")
//	-webroot string   Directory for the static interface pages
//	-password string  Web interface password (default: none)
//	-serial string    Serial device for the host link (default: none)
//	-baud int         Host link baud rate (default 115200)
//	-loglevel string  debug, info, warn or error (default "info")
//
// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/gcodes"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/log"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/nvram"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/platform"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/reprap"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/safety"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/serial"
	"github.com/Samuellynch1215/RepRapFirmware-1/pkg/webserver"
)

func main() {
	profilePath := flag.String("profile", "", "Board profile YAML (default: built-in Cartesian)")
	httpAddr := flag.String("http", ":8080", "Web interface listen address")
	webRoot := flag.String("webroot", "", "Directory for the static interface pages")
	password := flag.String("password", "", "Web interface password")
	serialDev := flag.String("serial", "", "Serial device for the host link")
	baudRate := flag.Int("baud", 115200, "Host link baud rate")
	logLevel := flag.String("loglevel", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	logger := log.New("rrf-host")
	logger.SetLevel(log.ParseLevel(*logLevel))
	log.SetDefaultLogger(logger)

	if err := run(*profilePath, *httpAddr, *webRoot, *password, *serialDev, *baudRate, logger); err != nil {
		fmt.Fprintf(os.Stderr, "rrf-host: %v\n", err)
		os.Exit(1)
	}
}

func run(profilePath, httpAddr, webRoot, password, serialDev string, baudRate int, logger *log.Logger) error {
	profile := platform.DefaultProfile()
	if profilePath != "" {
		var err error
		profile, err = platform.LoadProfile(profilePath)
		if err != nil {
			return err
		}
	}

	backend, err := nvram.NewFileBackend(profile.Storage.NvDir, true)
	if err != nil {
		return fmt.Errorf("flash emulation: %w", err)
	}
	store := nvram.NewStore(backend)

	p := platform.New(platform.NewSimBoard(), profile, store)
	if err := p.Init(); err != nil {
		return fmt.Errorf("platform: %w", err)
	}

	// Host serial link, if a device was given.
	var host gcodes.ByteSource
	var link *serial.Link
	if serialDev != "" {
		device, err := serial.ResolveDevice(serialDev)
		if err != nil {
			return err
		}
		cfg := serial.DefaultConfig()
		cfg.Device = device
		cfg.BaudRate = baudRate
		port, err := serial.Open(cfg)
		if err != nil {
			return fmt.Errorf("host link: %w", err)
		}
		defer port.Close()

		link = serial.NewLink(port)
		link.Start()
		defer link.Stop()
		host = link
		logger.Info("host link on %s at %d baud", device, baudRate)
	}

	mgr := safety.New()

	var r *reprap.RepRap
	web := webserver.New(webserver.Config{
		Addr:     httpAddr,
		WebRoot:  webRoot,
		Password: password,
	}, p.MassStorage(), nil, func() {
		if r != nil {
			r.EmergencyStop()
		}
	})

	r = reprap.New(p, mgr, web, host)
	web.SetStatusProvider(r)

	p.SetHTTPSink(web)
	if link != nil {
		p.SetHostSink(link)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// M999 lands here: persist the reset record, then leave the loop
	// and let the supervisor restart us.
	p.SetResetHook(func() {
		logger.Warn("software reset requested")
		cancel()
	})

	estop := make(chan os.Signal, 1)
	signal.Notify(estop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-estop
		logger.Info("received %v, shutting down", sig)
		cancel()
	}()

	go func() {
		if err := web.Start(); err != nil {
			logger.Error("web interface: %v", err)
		}
	}()
	defer web.Stop()

	r.Init()
	r.Start()
	defer r.Stop()

	logger.Info("machine %q running", profile.Name)
	r.Run(ctx)
	return nil
}
