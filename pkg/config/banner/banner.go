// Package banner prints the startup summary of the effective config.
package banner

import (
	"fmt"
	"io"

	"chatstore/pkg/config"
)

const banner = `
  ___ _  _   _ _____ ___ _____ ___  ___ ___
 / __| || | /_\_   _/ __|_   _/ _ \| _ \ __|
| (__| __ |/ _ \| | \__ \ | || (_) |   / _|
 \___|_||_/_/ \_\_| |___/ |_| \___/|_|_\___|
`

// Print writes the banner and a summary of eff to w.
func Print(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	src := eff.Source
	if src == "" {
		src = "defaults"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Source:   %s\n", src)

	fmt.Fprintln(w, "\n== Storage ====================================================")
	fmt.Fprintf(w, "- Backend: %s\n", cfg.Store.Backend)
	if cfg.Store.Backend == config.BackendPebble {
		wal := "enabled"
		if cfg.Store.DisableWAL {
			wal = "DISABLED (recent writes are lost on crash)"
		}
		fmt.Fprintf(w, "- WAL: %s\n", wal)
		fmt.Fprintf(w, "- Memtable: %s\n", cfg.Store.MemTableSize)
	}
	if limit := cfg.CacheLimit(); limit > 0 {
		fmt.Fprintf(w, "- Read cache: %d entries\n", limit)
	} else {
		fmt.Fprintln(w, "- Read cache: disabled")
	}

	fmt.Fprintln(w, "\n== Operations =================================================")
	if cfg.Server.Address != "" {
		fmt.Fprintf(w, "- Ops endpoint: %s\n", cfg.Server.Address)
	} else {
		fmt.Fprintln(w, "- Ops endpoint: disabled")
	}
	if cfg.Maintenance.CheckCron != "" {
		fmt.Fprintf(w, "- Scheduled check: cron=%s\n", cfg.Maintenance.CheckCron)
	} else {
		fmt.Fprintln(w, "- Scheduled check: disabled")
	}
	if cfg.Telemetry.Enabled {
		fmt.Fprintln(w, "- Telemetry: enabled")
	} else {
		fmt.Fprintln(w, "- Telemetry: disabled")
	}
}
