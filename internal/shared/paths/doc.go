// Package paths resolves where the controller keeps its files.
//
// # Layout
//
//	APP_HOME/
//	  ├── settings.json             (optional settings file, json/toml/yaml)
//	  ├── config.db                 (durable configuration stores)
//	  └── .telemetry-consent.lock   (present once consent was given)
//
// APP_HOME is an explicit --app-data-dir, a portable ".apic" directory next to
// the executable, or the per-user config directory, in that order.
package paths
