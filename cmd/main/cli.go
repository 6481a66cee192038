package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"
)

var profileModes = map[string]func(*profile.Profile){
	"block":     profile.BlockProfile,
	"cpu":       profile.CPUProfile,
	"clock":     profile.ClockProfile,
	"goroutine": profile.GoroutineProfile,
	"mem":       profile.MemProfile,
	"allocs":    profile.MemProfileAllocs,
	"heap":      profile.MemProfileHeap,
	"mutex":     profile.MutexProfile,
	"thread":    profile.ThreadcreationProfile,
	"trace":     profile.TraceProfile,
}

// CLI holds the command line flags. Everything else lives in the config file.
type CLI struct {
	Config     string           `default:"config.json" help:"Path to the JSON configuration file." short:"c" type:"path"`
	LogLevel   string           `default:""            enum:",debug,info,warn,error" help:"Override server_config.log_level." placeholder:"LEVEL"`
	Debug      bool             `help:"Answer missing templates with a diagnostic page instead of a 404." short:"d"`
	Profile    string           `default:""            enum:",${profileModes}" help:"Write a runtime profile of the given kind." placeholder:"MODE"`
	ProfileDir string           `default:"."           help:"Profile output directory." type:"path"`
	Version    kong.VersionFlag `help:"Print version information and exit."`
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("dynrender"),
		kong.Description("Serve a directory of templates rendered against a tree of data files."),
		kong.UsageOnError(),
		kong.Vars{
			"version":      fmt.Sprintf("dynrender %s (commit %s, built %s)", Version, Commit, BuildDate),
			"profileModes": strings.Join(slices.Sorted(maps.Keys(profileModes)), ","),
		},
	)
}

type noProfile struct{}

func (noProfile) Stop() {}

// startProfile starts the profiler selected with --profile. The returned
// value must be stopped before the process exits.
func (c *CLI) startProfile() interface{ Stop() } {
	mode, ok := profileModes[c.Profile]
	if !ok {
		return noProfile{}
	}
	return profile.Start(mode, profile.ProfilePath(c.ProfileDir), profile.NoShutdownHook, profile.Quiet)
}
