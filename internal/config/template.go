package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"go.lazytran.dev/lazytran/internal/errs"
)

// yamlDoc mirrors Config's shape with yaml tags for the `config generate`
// template; kept separate from Config's mapstructure tags since viper and
// yaml.v3 use different tag names (gopkg.in/yaml.v3 is the template
// encoder dmitrymodder-minewire uses for its own server.yaml).
type yamlDoc struct {
	Debug bool `yaml:"debug"`
	Public struct {
		Address  string `yaml:"address"`
		Version  string `yaml:"version"`
		Protocol int32  `yaml:"protocol"`
	} `yaml:"public"`
	Server struct {
		Command                  string `yaml:"command"`
		Directory                string `yaml:"directory"`
		Address                  string `yaml:"address"`
		FreezeProcess            bool   `yaml:"freeze_process"`
		WakeOnCrash              bool   `yaml:"wake_on_crash"`
		WakeOnStatus             bool   `yaml:"wake_on_status"`
		StartTimeout             string `yaml:"start_timeout"`
		StopTimeout              string `yaml:"stop_timeout"`
		StopStepTimeout          string `yaml:"stop_step_timeout"`
		MaxPlayers               int    `yaml:"max_players"`
		RewriteServerProperties  bool   `yaml:"rewrite_server_properties"`
	} `yaml:"server"`
	Time struct {
		SleepAfter        string `yaml:"sleep_after"`
		MinimumOnlineTime string `yaml:"minimum_online_time"`
		PollInterval      string `yaml:"poll_interval"`
	} `yaml:"time"`
	Motd struct {
		Sleeping    string `yaml:"sleeping"`
		Starting    string `yaml:"starting"`
		FromServer  bool   `yaml:"from_server"`
		FaviconPath string `yaml:"favicon_path"`
	} `yaml:"motd"`
	Join struct {
		Methods []string `yaml:"methods"`
		Hold    struct {
			Timeout string `yaml:"timeout"`
		} `yaml:"hold"`
		Kick struct {
			Starting string `yaml:"starting"`
			Started  string `yaml:"started"`
			Stopping string `yaml:"stopping"`
		} `yaml:"kick"`
		Forward struct {
			Address string `yaml:"address"`
		} `yaml:"forward"`
		Lobby struct {
			Timeout    string `yaml:"timeout"`
			PublicHost string `yaml:"public_host"`
			PublicPort int32  `yaml:"public_port"`
		} `yaml:"lobby"`
	} `yaml:"join"`
	Rcon struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
	} `yaml:"rcon"`
	Lockout struct {
		Enabled bool   `yaml:"enabled"`
		Message string `yaml:"message"`
	} `yaml:"lockout"`
	Advanced struct {
		RestartOnCrash bool `yaml:"restart_on_crash"`
	} `yaml:"advanced"`
}

func toYAMLDoc(cfg Config) yamlDoc {
	var d yamlDoc
	d.Debug = cfg.Debug
	d.Public.Address = cfg.Public.Address
	d.Public.Version = cfg.Public.Version
	d.Public.Protocol = cfg.Public.Protocol
	d.Server.Command = cfg.Server.Command
	d.Server.Directory = cfg.Server.Directory
	d.Server.Address = cfg.Server.Address
	d.Server.FreezeProcess = cfg.Server.FreezeProcess
	d.Server.WakeOnCrash = cfg.Server.WakeOnCrash
	d.Server.WakeOnStatus = cfg.Server.WakeOnStatus
	d.Server.StartTimeout = cfg.Server.StartTimeout.String()
	d.Server.StopTimeout = cfg.Server.StopTimeout.String()
	d.Server.StopStepTimeout = cfg.Server.StopStepTimeout.String()
	d.Server.MaxPlayers = cfg.Server.MaxPlayers
	d.Server.RewriteServerProperties = cfg.Server.RewriteServerProps
	d.Time.SleepAfter = cfg.Time.SleepAfter.String()
	d.Time.MinimumOnlineTime = cfg.Time.MinimumOnlineTime.String()
	d.Time.PollInterval = cfg.Time.PollInterval.String()
	d.Motd.Sleeping = cfg.Motd.Sleeping
	d.Motd.Starting = cfg.Motd.Starting
	d.Motd.FromServer = cfg.Motd.FromServer
	d.Motd.FaviconPath = cfg.Motd.FaviconPath
	d.Join.Methods = cfg.Join.Methods
	d.Join.Hold.Timeout = cfg.Join.Hold.Timeout.String()
	d.Join.Kick.Starting = cfg.Join.Kick.Starting
	d.Join.Kick.Started = cfg.Join.Kick.Started
	d.Join.Kick.Stopping = cfg.Join.Kick.Stopping
	d.Join.Forward.Address = cfg.Join.Forward.Address
	d.Join.Lobby.Timeout = cfg.Join.Lobby.Timeout.String()
	d.Join.Lobby.PublicHost = cfg.Join.Lobby.PublicHost
	d.Join.Lobby.PublicPort = cfg.Join.Lobby.PublicPort
	d.Rcon.Enabled = cfg.Rcon.Enabled
	d.Rcon.Address = cfg.Rcon.Address
	d.Rcon.Port = cfg.Rcon.Port
	d.Rcon.Password = cfg.Rcon.Password
	d.Lockout.Enabled = cfg.Lockout.Enabled
	d.Lockout.Message = cfg.Lockout.Message
	d.Advanced.RestartOnCrash = cfg.Advanced.RestartOnCrash
	return d
}

// WriteTemplate renders Default() as YAML to path. It refuses to
// overwrite an existing file unless force is set (spec.md §8
// "repeated config generate into an existing file refuses to overwrite
// unless --force").
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errs.New(errs.KindConfigInvalid, "config.WriteTemplate", errAlreadyExists(path))
		}
	}

	data, err := yaml.Marshal(toYAMLDoc(Default()))
	if err != nil {
		return errs.New(errs.KindIO, "config.WriteTemplate", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.New(errs.KindIO, "config.WriteTemplate", err)
	}
	return nil
}

type existsErr struct{ path string }

func (e existsErr) Error() string { return e.path + " already exists (use --force to overwrite)" }

func errAlreadyExists(path string) error { return existsErr{path: path} }
