package config

import (
	"strings"

	"github.com/spf13/cobra"
)

// ProtocolScheme is the scheme of links that start the application.
const ProtocolScheme = "http-client"

// ProtocolFile is a file the application was asked to open through a link
// like http-client://drive/open/<id>.
type ProtocolFile struct {
	Source string
	Action string
	ID     string
}

// Query returns the main page parameters for the file.
func (p *ProtocolFile) Query() map[string]string {
	if p == nil {
		return nil
	}
	return map[string]string{"source": p.Source, "action": p.Action, "id": p.ID}
}

// ParseProtocolFile reads a start link. Only drive links are recognized.
func ParseProtocolFile(arg string) (*ProtocolFile, bool) {
	rest, ok := strings.CutPrefix(arg, ProtocolScheme+"://")
	if !ok {
		return nil, false
	}
	parts := strings.Split(rest, "/")
	if parts[0] != "drive" || len(parts) < 3 {
		return nil, false
	}
	return &ProtocolFile{Source: "google-drive", Action: parts[1], ID: parts[2]}, true
}

type changedSet interface {
	Changed(name string) bool
}

// Flags holds the command line options until they are applied.
type Flags struct {
	set changedSet

	settingsFile        string
	dev                 bool
	debugLevel          string
	withDevtools        bool
	port                int
	skipAppUpdate       bool
	appDataDir          string
	skipTelemetry       bool
	proxy               string
	proxyUsername       string
	proxyPassword       string
	proxySystemSettings bool
	proxyAll            bool
}

// BindFlags registers the application options on cmd.
func BindFlags(cmd *cobra.Command) *Flags {
	f := &Flags{}
	fs := cmd.Flags()
	f.set = fs

	fs.StringVarP(&f.settingsFile, "settings-file", "s", "", "path to the settings file (json, toml or yaml)")
	fs.BoolVarP(&f.dev, "dev", "d", false, "run in development mode")
	fs.StringVarP(&f.debugLevel, "debug-level", "l", "", "log level: error, warn, info, http, verbose, debug, silly")
	fs.BoolVarP(&f.withDevtools, "with-devtools", "w", false, "open windows with developer tools")
	fs.IntVarP(&f.port, "port", "p", 0, "ingress port, 0 picks a free one")
	fs.BoolVarP(&f.skipAppUpdate, "skip-app-update", "u", false, "skip the update check for this run")
	fs.StringVarP(&f.appDataDir, "app-data-dir", "D", "", "application data directory")
	fs.BoolVar(&f.skipTelemetry, "skip-telemetry", false, "do not show the telemetry consent screen")
	fs.StringVar(&f.proxy, "proxy", "", "proxy URL for outbound requests")
	fs.StringVar(&f.proxyUsername, "proxy-username", "", "proxy username")
	fs.StringVar(&f.proxyPassword, "proxy-password", "", "proxy password")
	fs.BoolVar(&f.proxySystemSettings, "proxy-system-settings", false, "use the system proxy settings")
	fs.BoolVar(&f.proxyAll, "proxy-all", false, "apply the proxy to the whole application")
	return f
}

// Apply resolves the application home, merges the settings file and then
// the options given on the command line, which win over both.
func (f *Flags) Apply(cfg *Config, executable string, args []string) error {
	if f.set.Changed("app-data-dir") {
		cfg.App.Home = f.appDataDir
	}
	home, err := cfg.ResolveHome(executable)
	if err != nil {
		return err
	}

	override := cfg.App.SettingsFile
	if f.set.Changed("settings-file") {
		override = f.settingsFile
	}
	settingsPath, err := home.Settings(override)
	if err != nil {
		return err
	}
	cfg.App.SettingsFile = settingsPath
	settings, err := ReadSettings(settingsPath)
	if err != nil {
		return err
	}
	cfg.Merge(settings)

	f.override(cfg)

	if cfg.App.Dev {
		cfg.Logging.Development = true
		if !f.set.Changed("debug-level") && settings.DebugLevel == nil {
			cfg.Logging.Level = "silly"
		}
	}
	for _, a := range args {
		if pf, ok := ParseProtocolFile(a); ok {
			cfg.App.ProtocolFile = pf
		}
	}
	return nil
}

func (f *Flags) override(cfg *Config) {
	ifChanged := func(name string, apply func()) {
		if f.set.Changed(name) {
			apply()
		}
	}
	ifChanged("dev", func() { cfg.App.Dev = f.dev })
	ifChanged("debug-level", func() { cfg.Logging.Level = f.debugLevel })
	ifChanged("with-devtools", func() { cfg.App.WithDevtools = f.withDevtools })
	ifChanged("port", func() { cfg.Server.Port = f.port })
	ifChanged("skip-app-update", func() { cfg.App.SkipAppUpdate = f.skipAppUpdate })
	ifChanged("skip-telemetry", func() { cfg.App.SkipTelemetry = f.skipTelemetry })
	ifChanged("proxy", func() { cfg.Proxy.URL = f.proxy })
	ifChanged("proxy-username", func() { cfg.Proxy.Username = f.proxyUsername })
	ifChanged("proxy-password", func() { cfg.Proxy.Password = f.proxyPassword })
	ifChanged("proxy-system-settings", func() { cfg.Proxy.SystemSettings = f.proxySystemSettings })
	ifChanged("proxy-all", func() { cfg.Proxy.All = f.proxyAll })
}
