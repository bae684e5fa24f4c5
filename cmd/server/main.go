package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"r4r-detector/internal/api"
	"r4r-detector/internal/app"
	"r4r-detector/internal/config"
	"r4r-detector/internal/provider"
)

var (
	configFile = flag.String("config", "config.yaml", "Configuration file path")
	addr       = flag.String("addr", "", "Listen address (host:port), overrides the server config")
	analyze    = flag.String("analyze", "", "Run a one-shot analysis for a userkey and print the report")
	network    = flag.String("network", "", "Run a one-shot network scan for a comma-separated userkey list")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *addr != "" {
		if err := applyAddr(cfg, *addr); err != nil {
			log.Fatalf("Invalid -addr value %q: %v", *addr, err)
		}
	}

	if err := setupLogging(cfg.Logging); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}

	client := provider.NewClient(cfg.Provider)
	service, err := app.New(cfg, client)
	if err != nil {
		log.Fatalf("Failed to initialize analysis service: %v", err)
	}

	switch {
	case *analyze != "":
		runOneShot(service, *analyze)
	case *network != "":
		runNetworkScan(service, strings.Split(*network, ","))
	default:
		server := api.NewServer(service, cfg.Server)
		if err := server.Start(); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}
}

func applyAddr(cfg *config.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	if host != "" {
		cfg.Server.Host = host
	}
	cfg.Server.Port = port
	return nil
}

func setupLogging(cfg config.LoggingConfig) error {
	if cfg.Output == "stdout" || cfg.Output == "" {
		return nil
	}

	file, err := os.OpenFile(cfg.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	if cfg.Output == "both" {
		log.SetOutput(io.MultiWriter(os.Stdout, file))
	} else {
		log.SetOutput(file)
	}
	return nil
}

func runOneShot(service *app.AnalysisService, userkey string) {
	report, err := service.Analyze(context.Background(), userkey)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}
	printJSON(report)
}

func runNetworkScan(service *app.AnalysisService, userkeys []string) {
	for i := range userkeys {
		userkeys[i] = strings.TrimSpace(userkeys[i])
	}

	scan, err := service.AnalyzeNetwork(context.Background(), userkeys)
	if err != nil {
		log.Fatalf("Network scan failed: %v", err)
	}
	printJSON(scan)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}
