package state

import "path/filepath"

type Paths struct {
	DB    string
	Store string
	State string
	Logs  string
	Tel   string
	// Audit holds lease files of scheduled maintenance runs.
	Audit string
}

func PathsFor(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		DB:    dbPath,
		Store: filepath.Join(dbPath, "store"),
		State: statePath,
		Logs:  filepath.Join(statePath, "logs"),
		Tel:   filepath.Join(statePath, "telemetry"),
		Audit: filepath.Join(statePath, "audit"),
	}
}

func (p Paths) all() []string {
	return []string{p.Store, p.Logs, p.Tel, p.Audit}
}
