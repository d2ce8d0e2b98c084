package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/opensensors/airsense/internal/app"
	"github.com/opensensors/airsense/internal/log"
	"github.com/opensensors/airsense/pkg/config"
)

const version = "2.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	logFile := flag.String("log-file", "", "Write logs to this file in addition to stdout")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("airsense %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	if err := log.Init(*debug, *logFile); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Load configuration
	filename, _ := filepath.Abs(*cfgFile)
	provider := config.NewYAMLProvider(filename)
	if _, err := provider.LoadConfig(); err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// Create and run the application
	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}
