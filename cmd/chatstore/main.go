package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"

	"chatstore/internal/app"
	"chatstore/pkg/config"
	"chatstore/pkg/config/banner"
	"chatstore/pkg/state/logger"
	"chatstore/pkg/state/shutdown"
)

// set by the build
var version = "dev"

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags, err := config.ParseConfigFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		shutdown.Abort("failed to parse flags", err, "")
	}

	fileCfg, fileExists, err := config.ParseConfigFile(flags, os.Getenv)
	if err != nil {
		shutdown.Abort("failed to load config file", err, flags.DB)
	}
	envCfg, envRes, err := config.ParseConfigEnvs(os.Getenv)
	if err != nil {
		shutdown.Abort("invalid environment", err, flags.DB)
	}
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		shutdown.Abort("failed to build effective config", err, flags.DB)
	}
	if err := config.ValidateConfig(&eff); err != nil {
		shutdown.Abort("invalid configuration", err, eff.DBPath)
	}

	logger.Init(eff.Config.Logging.Level)
	logger.Info("effective_config_loaded", "source", eff.Source, "db_path", eff.DBPath, "backend", eff.Config.Store.Backend)
	logger.Info("system_logical_cores", "logical_cores", runtime.NumCPU())

	a, err := app.New(eff, version)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, eff.DBPath)
	}

	code := run(a, flags, eff)

	// bounded so teardown cannot hang forever
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown_failed", "error", err)
		code = 1
	}
	os.Exit(code)
}

func run(a *app.App, flags config.Flags, eff config.EffectiveConfigResult) int {
	ctx := context.Background()
	code := 0

	if flags.Check {
		if err := a.Check(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "check failed: %v\n", err)
			code = 1
		} else {
			fmt.Println("rankings ok")
		}
	}

	if flags.Top > 0 {
		top, err := a.Top(ctx, flags.Ranking, flags.Top)
		if err != nil {
			fmt.Fprintf(os.Stderr, "top: %v\n", err)
			return 1
		}
		for i, name := range top {
			fmt.Printf("%d. %s\n", i+1, name)
		}
	}

	if flags.Serve {
		banner.Print(os.Stdout, eff, version)
		sigCtx, cancel := shutdown.SetupSignalHandler(ctx)
		defer cancel()
		if err := a.Run(sigCtx); err != nil {
			logger.Error("app_run_failed", "error", err)
			return 1
		}
	}
	return code
}
