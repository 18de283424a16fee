package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/use-agent/linkscan/models"
)

// AppName names the per-user config directory.
const AppName = "linkscan"

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = ".linkscan.yaml"

// SiteConfig holds per-site scan settings.
type SiteConfig struct {
	Depth           int      `yaml:"depth,omitempty"`
	MaxPages        int      `yaml:"maxPages,omitempty"`
	Scope           string   `yaml:"scope,omitempty"`
	ExcludePatterns []string `yaml:"excludePatterns,omitempty"`
	FollowPatterns  []string `yaml:"followPatterns,omitempty"`
	UseSitemaps     bool     `yaml:"useSitemaps,omitempty"`

	// Cooperation is the owner authorization used for this site.
	Cooperation *CooperationConfig `yaml:"cooperation,omitempty"`
}

// CooperationConfig is the YAML form of models.Cooperation.
type CooperationConfig struct {
	WhitelistIP  bool   `yaml:"whitelistIp"`
	User         string `yaml:"user,omitempty"`
	Pass         string `yaml:"pass,omitempty"`
	APIKey       string `yaml:"apiKey,omitempty"`
	APIKeyHeader string `yaml:"apiKeyHeader,omitempty"`
}

// Cooperation converts c to the request type.
func (c *CooperationConfig) Cooperation() *models.Cooperation {
	if c == nil {
		return nil
	}
	coop := &models.Cooperation{
		WhitelistIP:  c.WhitelistIP,
		APIKey:       c.APIKey,
		APIKeyHeader: c.APIKeyHeader,
	}
	if c.User != "" || c.Pass != "" {
		coop.SiteCredentials = &models.SiteCredentials{User: c.User, Pass: c.Pass}
	}
	return coop
}

// File is the YAML site file.
type File struct {
	Defaults SiteConfig            `yaml:"defaults,omitempty"`
	Sites    map[string]SiteConfig `yaml:"sites,omitempty"`
}

// LoadFile parses the YAML file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-chosen config path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if f.Sites == nil {
		f.Sites = make(map[string]SiteConfig)
	}
	for host, sc := range f.Sites {
		if err := sc.Cooperation.Cooperation().Validate(); err != nil {
			return nil, fmt.Errorf("config: site %s: %w", host, err)
		}
	}
	return &f, nil
}

// FindFile returns the config file to use: the explicit path, then
// ./.linkscan.yaml, then $XDG_CONFIG_HOME/linkscan/config.yaml. It
// returns "" when none exists.
func FindFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	candidates := []string{DefaultConfigFile, filepath.Join(Dir(), "config.yaml")}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Dir returns the per-user configuration directory.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Site returns the settings for host, merged over the defaults. Site
// values win when set.
func (f *File) Site(host string) SiteConfig {
	result := f.Defaults
	sc, ok := f.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}
	if sc.Depth != 0 {
		result.Depth = sc.Depth
	}
	if sc.MaxPages != 0 {
		result.MaxPages = sc.MaxPages
	}
	if sc.Scope != "" {
		result.Scope = sc.Scope
	}
	if len(sc.ExcludePatterns) > 0 {
		result.ExcludePatterns = sc.ExcludePatterns
	}
	if len(sc.FollowPatterns) > 0 {
		result.FollowPatterns = sc.FollowPatterns
	}
	if sc.UseSitemaps {
		result.UseSitemaps = true
	}
	if sc.Cooperation != nil {
		result.Cooperation = sc.Cooperation
	}
	return result
}

// Apply fills unset fields of req from the settings for its host.
func (f *File) Apply(req *models.ScanRequest) {
	if f == nil {
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return
	}
	sc := f.Site(u.Hostname())

	o := &req.Options
	if o.MaxDepth == 0 {
		o.MaxDepth = sc.Depth
	}
	if o.MaxPages == 0 {
		o.MaxPages = sc.MaxPages
	}
	if o.Scope == "" {
		o.Scope = sc.Scope
	}
	if len(o.ExcludePatterns) == 0 {
		o.ExcludePatterns = sc.ExcludePatterns
	}
	if len(o.FollowPatterns) == 0 {
		o.FollowPatterns = sc.FollowPatterns
	}
	if sc.UseSitemaps {
		o.UseSitemaps = true
	}
	if req.Cooperation == nil {
		req.Cooperation = sc.Cooperation.Cooperation()
	}
}
