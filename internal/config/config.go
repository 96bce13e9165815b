// Package config loads and validates ConfigSpec (spec.md §3, §6): the
// nested options struct every other package receives a read-only slice
// of. Loading is grounded on the teacher's cmd/gate/gate.go
// (`viper.Unmarshal(&cfg)` followed by `config.Validate(&cfg)`), with
// environment overrides wired through viper's own AutomaticEnv/
// EnvKeyReplacer machinery per spec.md §6's `SECTION__KEY` -> `section.key`
// contract.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.lazytran.dev/lazytran/internal/errs"
)

// Public carries the public listen socket knobs (spec.md §6).
type Public struct {
	Address  string `mapstructure:"address"`
	Version  string `mapstructure:"version"`
	Protocol int32  `mapstructure:"protocol"`
}

// Server carries the backend process/endpoint knobs (spec.md §6).
type Server struct {
	Command            string        `mapstructure:"command"`
	Directory           string        `mapstructure:"directory"`
	Address             string        `mapstructure:"address"` // loopback:internal_port
	FreezeProcess       bool          `mapstructure:"freeze_process"`
	WakeOnCrash         bool          `mapstructure:"wake_on_crash"`
	WakeOnStatus        bool          `mapstructure:"wake_on_status"`
	StartTimeout        time.Duration `mapstructure:"start_timeout"`
	StopTimeout          time.Duration `mapstructure:"stop_timeout"`
	StopStepTimeout      time.Duration `mapstructure:"stop_step_timeout"`
	MaxPlayers           int           `mapstructure:"max_players"`
	RewriteServerProps   bool          `mapstructure:"rewrite_server_properties"`
}

// Time carries idle-timer knobs (spec.md §6, §3 IdleTimer).
type Time struct {
	SleepAfter        time.Duration `mapstructure:"sleep_after"`
	MinimumOnlineTime time.Duration `mapstructure:"minimum_online_time"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

// Motd carries the Status Responder's MOTD text per backend sub-state
// (spec.md §6, §4.2).
type Motd struct {
	Sleeping   string `mapstructure:"sleeping"`
	Starting   string `mapstructure:"starting"`
	FromServer bool   `mapstructure:"from_server"`
	FaviconPath string `mapstructure:"favicon_path"`
}

// Join carries the Join Dispatcher's method list and per-method knobs
// (spec.md §6, §4.7).
type Join struct {
	Methods []string      `mapstructure:"methods"`
	Hold    JoinHold      `mapstructure:"hold"`
	Kick    JoinKick      `mapstructure:"kick"`
	Forward JoinForward   `mapstructure:"forward"`
	Lobby   JoinLobby     `mapstructure:"lobby"`
}

type JoinHold struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type JoinKick struct {
	Starting string `mapstructure:"starting"`
	Started  string `mapstructure:"started"`
	Stopping string `mapstructure:"stopping"`
}

type JoinForward struct {
	Address string `mapstructure:"address"`
}

type JoinLobby struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	PublicHost string        `mapstructure:"public_host"`
	PublicPort int32         `mapstructure:"public_port"`
}

// Rcon carries the RCON client/rewrite knobs (spec.md §6, §4.3).
type Rcon struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// Lockout carries the lockout-mode knobs (spec.md §4.5 "any -> Stopped").
type Lockout struct {
	Enabled bool   `mapstructure:"enabled"`
	Message string `mapstructure:"message"`
}

// Advanced carries escape-hatch knobs that don't fit another section.
type Advanced struct {
	RestartOnCrash bool `mapstructure:"restart_on_crash"`
}

// Config is the full ConfigSpec (spec.md §3, §6).
type Config struct {
	Debug    bool     `mapstructure:"debug"`
	Public   Public   `mapstructure:"public"`
	Server   Server   `mapstructure:"server"`
	Time     Time     `mapstructure:"time"`
	Motd     Motd     `mapstructure:"motd"`
	Join     Join     `mapstructure:"join"`
	Rcon     Rcon     `mapstructure:"rcon"`
	Lockout  Lockout  `mapstructure:"lockout"`
	Advanced Advanced `mapstructure:"advanced"`
}

// Bind registers spec.md §6's environment override contract on v: a flat
// `SECTION__KEY` namespace mapping to `section.key`, read automatically
// once a key has a registered default (mirrors spf13/viper's own
// AutomaticEnv + SetEnvKeyReplacer idiom, used the same way the teacher
// uses viper for `cmd/gate`'s config load).
func Bind(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	setDefaults(v)
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("public.address", d.Public.Address)
	v.SetDefault("public.version", d.Public.Version)
	v.SetDefault("public.protocol", d.Public.Protocol)
	v.SetDefault("server.command", d.Server.Command)
	v.SetDefault("server.directory", d.Server.Directory)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.freeze_process", d.Server.FreezeProcess)
	v.SetDefault("server.wake_on_crash", d.Server.WakeOnCrash)
	v.SetDefault("server.wake_on_status", d.Server.WakeOnStatus)
	v.SetDefault("server.start_timeout", d.Server.StartTimeout)
	v.SetDefault("server.stop_timeout", d.Server.StopTimeout)
	v.SetDefault("server.stop_step_timeout", d.Server.StopStepTimeout)
	v.SetDefault("server.max_players", d.Server.MaxPlayers)
	v.SetDefault("server.rewrite_server_properties", d.Server.RewriteServerProps)
	v.SetDefault("time.sleep_after", d.Time.SleepAfter)
	v.SetDefault("time.minimum_online_time", d.Time.MinimumOnlineTime)
	v.SetDefault("time.poll_interval", d.Time.PollInterval)
	v.SetDefault("motd.sleeping", d.Motd.Sleeping)
	v.SetDefault("motd.starting", d.Motd.Starting)
	v.SetDefault("motd.from_server", d.Motd.FromServer)
	v.SetDefault("motd.favicon_path", d.Motd.FaviconPath)
	v.SetDefault("join.methods", d.Join.Methods)
	v.SetDefault("join.hold.timeout", d.Join.Hold.Timeout)
	v.SetDefault("join.kick.starting", d.Join.Kick.Starting)
	v.SetDefault("join.kick.started", d.Join.Kick.Started)
	v.SetDefault("join.kick.stopping", d.Join.Kick.Stopping)
	v.SetDefault("join.forward.address", d.Join.Forward.Address)
	v.SetDefault("join.lobby.timeout", d.Join.Lobby.Timeout)
	v.SetDefault("join.lobby.public_host", d.Join.Lobby.PublicHost)
	v.SetDefault("join.lobby.public_port", d.Join.Lobby.PublicPort)
	v.SetDefault("rcon.enabled", d.Rcon.Enabled)
	v.SetDefault("rcon.address", d.Rcon.Address)
	v.SetDefault("rcon.port", d.Rcon.Port)
	v.SetDefault("rcon.password", d.Rcon.Password)
	v.SetDefault("lockout.enabled", d.Lockout.Enabled)
	v.SetDefault("lockout.message", d.Lockout.Message)
	v.SetDefault("advanced.restart_on_crash", d.Advanced.RestartOnCrash)
}

// Default returns spec.md §6's recognized options with sane defaults.
func Default() Config {
	return Config{
		Public: Public{
			Address:  "0.0.0.0:25565",
			Version:  "lazytran",
			Protocol: 765,
		},
		Server: Server{
			Command:            "java -jar server.jar nogui",
			Directory:           ".",
			Address:             "127.0.0.1:25566",
			StartTimeout:        120 * time.Second,
			StopTimeout:          150 * time.Second,
			StopStepTimeout:      30 * time.Second,
			MaxPlayers:           20,
			RewriteServerProps:   true,
		},
		Time: Time{
			SleepAfter:   300 * time.Second,
			PollInterval: 5 * time.Second,
		},
		Motd: Motd{
			Sleeping: "Server is sleeping. Join to wake it up!",
			Starting: "Server is starting, please wait...",
		},
		Join: Join{
			Methods: []string{"hold", "kick"},
			Hold:    JoinHold{Timeout: 25 * time.Second},
			Kick: JoinKick{
				Starting: "Server is starting, please try again shortly.",
				Started:  "",
				Stopping: "Server is shutting down.",
			},
			Lobby: JoinLobby{Timeout: 600 * time.Second},
		},
		Lockout: Lockout{
			Message: "This server is temporarily locked.",
		},
		Advanced: Advanced{
			RestartOnCrash: true,
		},
	}
}

// Load reads path (if non-empty) into a fresh viper instance with
// defaults and environment overrides bound, then unmarshals into Config
// (spec.md §6's config surface).
func Load(path string) (*Config, error) {
	v := viper.New()
	Bind(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.New(errs.KindConfigInvalid, "config.Load", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.New(errs.KindConfigInvalid, "config.Load", err)
	}

	// spec.md §4.6: "enable RCON with a generated password if configured"
	// rather than requiring the operator to pick one.
	if cfg.Rcon.Enabled && cfg.Rcon.Password == "" {
		pass, err := generateRconPassword()
		if err != nil {
			return nil, errs.New(errs.KindConfigInvalid, "config.Load", err)
		}
		cfg.Rcon.Password = pass
	}
	return &cfg, nil
}

// generateRconPassword returns a random hex password for an
// unconfigured-but-enabled RCON, since the proxy itself is the only RCON
// client and has no reason to ask the operator to pick one.
func generateRconPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Validate mirrors the teacher's config.Validate: it checks every field
// it can and returns an aggregate error naming all of them, rather than
// failing on the first (spec.md §7 "Config errors at startup are
// fatal").
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Public.Address == "" {
		problems = append(problems, "public.address must not be empty")
	}
	if cfg.Server.Command == "" {
		problems = append(problems, "server.command must not be empty")
	}
	if cfg.Server.Address == "" {
		problems = append(problems, "server.address must not be empty")
	}
	if cfg.Server.MaxPlayers <= 0 {
		problems = append(problems, "server.max_players must be positive")
	}
	if len(cfg.Join.Methods) == 0 {
		problems = append(problems, "join.methods must list at least one method")
	}
	for _, m := range cfg.Join.Methods {
		switch m {
		case "hold", "kick", "forward", "lobby":
		default:
			problems = append(problems, fmt.Sprintf("join.methods: unknown method %q", m))
		}
	}
	for _, m := range cfg.Join.Methods {
		if m == "forward" && cfg.Join.Forward.Address == "" {
			problems = append(problems, "join.forward.address must be set when \"forward\" is a join method")
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errs.New(errs.KindConfigInvalid, "config.Validate", fmt.Errorf("%d problem(s): %s", len(problems), strings.Join(problems, "; ")))
}
