package oppprof

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/urfave/cli/v2"

	opservice "github.com/mantlenetworkio/ccip-gateway/op-service"
)

const (
	EnabledFlagName     = "pprof.enabled"
	ListenAddrFlagName  = "pprof.addr"
	PortFlagName        = "pprof.port"
	ProfileTypeFlagName = "pprof.type"
	ProfilePathFlagName = "pprof.path"
	defaultListenAddr   = "0.0.0.0"
	defaultListenPort   = 6060
)

var ErrInvalidPort = errors.New("invalid pprof port")

// ProfileType selects the profile recorded to disk for the lifetime of the process.
type ProfileType string

const (
	ProfileNone         ProfileType = ""
	ProfileCPU          ProfileType = "cpu"
	ProfileHeap         ProfileType = "heap"
	ProfileAllocs       ProfileType = "allocs"
	ProfileMutex        ProfileType = "mutex"
	ProfileBlock        ProfileType = "block"
	ProfileGoroutine    ProfileType = "goroutine"
	ProfileThreadCreate ProfileType = "threadcreate"
	ProfileTrace        ProfileType = "trace"
)

var profileTypes = []ProfileType{
	ProfileCPU, ProfileHeap, ProfileAllocs, ProfileMutex, ProfileBlock,
	ProfileGoroutine, ProfileThreadCreate, ProfileTrace,
}

func (t ProfileType) String() string {
	return string(t)
}

// ParseProfileType accepts the empty string, meaning no profile.
func ParseProfileType(value string) (ProfileType, error) {
	v := ProfileType(strings.ToLower(value))
	if v == ProfileNone {
		return v, nil
	}
	for _, pt := range profileTypes {
		if v == pt {
			return v, nil
		}
	}
	return ProfileNone, fmt.Errorf("unknown profile type: %q", value)
}

func profileTypeNames() string {
	names := make([]string, len(profileTypes))
	for i, pt := range profileTypes {
		names[i] = pt.String()
	}
	return strings.Join(names, ", ")
}

func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		ListenEnabled: false,
		ListenAddr:    defaultListenAddr,
		ListenPort:    defaultListenPort,
	}
}

func CLIFlags(envPrefix string) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:     EnabledFlagName,
			Usage:    "Enable the pprof server",
			EnvVars:  opservice.PrefixEnvVar(envPrefix, "PPROF_ENABLED"),
			Category: "Profiling",
		},
		&cli.StringFlag{
			Name:     ListenAddrFlagName,
			Usage:    "pprof listening address",
			Value:    defaultListenAddr,
			EnvVars:  opservice.PrefixEnvVar(envPrefix, "PPROF_ADDR"),
			Category: "Profiling",
		},
		&cli.IntFlag{
			Name:     PortFlagName,
			Usage:    "pprof listening port",
			Value:    defaultListenPort,
			EnvVars:  opservice.PrefixEnvVar(envPrefix, "PPROF_PORT"),
			Category: "Profiling",
		},
		&cli.StringFlag{
			Name:  ProfileTypeFlagName,
			Usage: "Profile to record to disk while running. One of: " + profileTypeNames(),
			Action: func(_ *cli.Context, s string) error {
				_, err := ParseProfileType(s)
				return err
			},
			EnvVars:  opservice.PrefixEnvVar(envPrefix, "PPROF_TYPE"),
			Category: "Profiling",
		},
		&cli.StringFlag{
			Name:     ProfilePathFlagName,
			Usage:    "Directory the recorded profile is written to. Defaults to a temporary directory.",
			EnvVars:  opservice.PrefixEnvVar(envPrefix, "PPROF_PATH"),
			Category: "Profiling",
		},
	}
}

type CLIConfig struct {
	ListenEnabled bool
	ListenAddr    string
	ListenPort    int

	ProfileType ProfileType
	ProfileDir  string
}

func (c CLIConfig) Check() error {
	if c.ProfileType != ProfileNone {
		if _, err := ParseProfileType(string(c.ProfileType)); err != nil {
			return err
		}
	}
	if !c.ListenEnabled {
		return nil
	}
	if c.ListenPort < 0 || c.ListenPort > math.MaxUint16 {
		return ErrInvalidPort
	}
	return nil
}

func ReadCLIConfig(ctx *cli.Context) CLIConfig {
	// validated by the flag action
	pt, _ := ParseProfileType(ctx.String(ProfileTypeFlagName))
	return CLIConfig{
		ListenEnabled: ctx.Bool(EnabledFlagName),
		ListenAddr:    ctx.String(ListenAddrFlagName),
		ListenPort:    ctx.Int(PortFlagName),
		ProfileType:   pt,
		ProfileDir:    ctx.String(ProfilePathFlagName),
	}
}
