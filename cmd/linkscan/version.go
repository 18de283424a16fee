package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Overridden with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = ""
	commit  = ""
)

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// readBuildInfo merges ldflags values with the module's embedded VCS stamp.
func readBuildInfo() buildInfo {
	bi := buildInfo{
		Version:   version,
		Commit:    commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if bi.Version == "" && info.Main.Version != "" {
			bi.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if bi.Commit == "" {
					bi.Commit = s.Value
				}
			case "vcs.modified":
				bi.Modified = s.Value == "true"
			}
		}
	}
	if bi.Version == "" {
		bi.Version = "(devel)"
	}
	if len(bi.Commit) > 12 {
		bi.Commit = bi.Commit[:12]
	}
	if bi.Commit == "" {
		bi.Commit = "unknown"
	}
	return bi
}

// NewVersionCmd prints build details, as text or JSON.
func NewVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print linkscan build details",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bi := readBuildInfo()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(bi)
			}
			dirty := ""
			if bi.Modified {
				dirty = "+dirty"
			}
			_, err := fmt.Fprintf(out, "linkscan version %s (%s%s) %s %s\n",
				bi.Version, bi.Commit, dirty, bi.GoVersion, bi.Platform)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print build details as JSON")
	return cmd
}
