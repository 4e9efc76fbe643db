package main

import (
	"runtime/debug"

	"github.com/ferreteria/ordersync/cmd"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

// buildVersion falls back to module or VCS info when no version was injected.
func buildVersion(v string) string {
	if v != "dev" && v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	if mv := info.Main.Version; mv != "" && mv != "(devel)" {
		return mv
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return v
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	v = "devel+" + rev
	if dirty {
		v += "+dirty"
	}
	return v
}

func main() {
	cmd.SetVersion(buildVersion(Version))
	cmd.Execute()
}
