package banner

import (
	"bytes"
	"strings"
	"testing"

	"chatstore/pkg/config"
)

func TestPrintSummarizesConfig(t *testing.T) {
	limit := 0
	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendPebble
	cfg.Store.DisableWAL = true
	cfg.Store.MemTableSize = 1 << 20
	cfg.Cache.Limit = &limit
	cfg.Maintenance.CheckCron = "0 * * * *"

	var buf bytes.Buffer
	Print(&buf, config.EffectiveConfigResult{Config: cfg, DBPath: "/data", Source: "env"}, "1.2.3")
	out := buf.String()
	for _, want := range []string{
		"DB Path:  /data",
		"Version:  1.2.3",
		"Source:   env",
		"WAL: DISABLED",
		"Memtable: 1.0 MiB",
		"Read cache: disabled",
		"Ops endpoint: disabled",
		"cron=0 * * * *",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
