package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/linkscan/models"
)

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, req models.ScanRequest)
	}{
		{
			name: "defaults leave options unset",
			args: []string{"https://example.com"},
			check: func(t *testing.T, req models.ScanRequest) {
				if req.Cooperation != nil {
					t.Errorf("cooperation = %+v, want nil", req.Cooperation)
				}
				if req.Options.MaxDepth != 0 || req.Options.MaxPages != 0 {
					t.Errorf("options = %+v", req.Options)
				}
			},
		},
		{
			name: "limits and cooperation",
			args: []string{"-d", "2", "-p", "50", "--delay", "1s", "--user", "ci", "--pass", "pw", "--whitelisted", "https://example.com"},
			check: func(t *testing.T, req models.ScanRequest) {
				if req.Options.MaxDepth != 2 || req.Options.MaxPages != 50 {
					t.Errorf("options = %+v", req.Options)
				}
				if time.Duration(req.Options.PolitenessDelay) != time.Second {
					t.Errorf("delay = %v", time.Duration(req.Options.PolitenessDelay))
				}
				c := req.Cooperation
				if c == nil || !c.WhitelistIP || c.SiteCredentials == nil || c.SiteCredentials.User != "ci" {
					t.Errorf("cooperation = %+v", c)
				}
			},
		},
		{name: "half credentials", args: []string{"--user", "ci", "https://example.com"}, wantErr: true},
		{name: "not http", args: []string{"mailto:a@example.com"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd := NewScanCmd()
			if err := cmd.Flags().Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			req, err := buildRequest(cmd, cmd.Flags().Arg(0))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, req)
			}
		})
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()
	rep := &models.ScanReport{
		ScannedURL:    "https://example.com/",
		Pages:         []models.PageRecord{},
		BrokenLinks:   []models.ProblemResource{},
		MissingImages: []models.ProblemResource{},
	}

	t.Run("json to file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "out", "report.json")
		if err := writeReport(&bytes.Buffer{}, "json", path, rep); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		if got["scannedUrl"] != "https://example.com/" {
			t.Errorf("scannedUrl = %v", got["scannedUrl"])
		}
	})

	t.Run("markdown to stdout", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		if err := writeReport(&buf, "markdown", "", rep); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "https://example.com/") {
			t.Errorf("markdown missing seed:\n%s", buf.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		if err := writeReport(&bytes.Buffer{}, "xml", "", rep); err == nil {
			t.Error("want error")
		}
	})
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "linkscan version") {
		t.Errorf("output = %q", out.String())
	}
}

func TestVersionCmdJSON(t *testing.T) {
	t.Parallel()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	var bi buildInfo
	if err := json.Unmarshal(out.Bytes(), &bi); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if bi.Version == "" || bi.Commit == "" || !strings.HasPrefix(bi.GoVersion, "go") {
		t.Errorf("build info = %+v", bi)
	}
}
