package sounds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind names a feedback earcon.
type Kind string

const (
	KindSessionStart  Kind = "start"
	KindError         Kind = "error"
	KindNotRecognized Kind = "not_recognized"
)

var allKinds = []Kind{KindSessionStart, KindError, KindNotRecognized}

// Config drives earcon resolution. Overrides live on disk under Dir:
//
//	<dir>/<kind>.wav         global default for the kind
//	<dir>/<scope>/<kind>.wav override for a site id or site group
//
// where kind is one of start, error, not_recognized.
type Config struct {
	Dir            string
	DisabledSites  []string
	GroupSeparator string
	DefaultVolume  float64
	SiteVolumes    map[string]float64
}

// Resolver answers which earcon (if any) a site should hear and at what
// volume. All file I/O happens at construction; resolution is pure.
type Resolver struct {
	disabled  map[string]struct{}
	separator string
	volume    float64
	volumes   map[string]float64
	sounds    map[Kind]map[string][]byte
}

func NewResolver(cfg Config) (*Resolver, error) {
	r := &Resolver{
		disabled:  make(map[string]struct{}, len(cfg.DisabledSites)),
		separator: cfg.GroupSeparator,
		volume:    clampVolume(cfg.DefaultVolume),
		volumes:   make(map[string]float64, len(cfg.SiteVolumes)),
		sounds:    make(map[Kind]map[string][]byte),
	}
	for _, site := range cfg.DisabledSites {
		if site = strings.TrimSpace(site); site != "" {
			r.disabled[site] = struct{}{}
		}
	}
	for scope, v := range cfg.SiteVolumes {
		r.volumes[scope] = clampVolume(v)
	}
	for _, kind := range allKinds {
		r.sounds[kind] = make(map[string][]byte)
	}

	if strings.TrimSpace(cfg.Dir) == "" {
		return r, nil
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read sounds dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			scope := entry.Name()
			for _, kind := range allKinds {
				if err := r.loadSound(filepath.Join(cfg.Dir, scope, string(kind)+".wav"), kind, scope); err != nil {
					return nil, err
				}
			}
			continue
		}
		for _, kind := range allKinds {
			if entry.Name() == string(kind)+".wav" {
				if err := r.loadSound(filepath.Join(cfg.Dir, entry.Name()), kind, ""); err != nil {
					return nil, err
				}
			}
		}
	}
	return r, nil
}

func (r *Resolver) loadSound(path string, kind Kind, scope string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read sound %s: %w", path, err)
	}
	if _, err := parseWAVPCM16LE(data); err != nil {
		return fmt.Errorf("sound %s: %w", path, err)
	}
	r.sounds[kind][scope] = data
	return nil
}

// Sound resolves the earcon for a site. Precedence: site override, then
// group override (site id truncated at the first separator), then the global
// default. Disabled sites get nothing regardless of overrides.
func (r *Resolver) Sound(siteID string, kind Kind) ([]byte, bool) {
	if _, off := r.disabled[siteID]; off {
		return nil, false
	}
	byScope := r.sounds[kind]
	if wav, ok := byScope[siteID]; ok {
		return wav, true
	}
	if group, ok := r.group(siteID); ok {
		if wav, ok := byScope[group]; ok {
			return wav, true
		}
	}
	if wav, ok := byScope[""]; ok {
		return wav, true
	}
	return nil, false
}

// Volume resolves playback volume for a site with the same precedence as
// Sound, falling back to the configured default (1.0 if unset).
func (r *Resolver) Volume(siteID string) float64 {
	if v, ok := r.volumes[siteID]; ok {
		return v
	}
	if group, ok := r.group(siteID); ok {
		if v, ok := r.volumes[group]; ok {
			return v
		}
	}
	return r.volume
}

// Render resolves the earcon for a site with its volume already applied to
// the samples, ready to publish as play-bytes.
func (r *Resolver) Render(siteID string, kind Kind) ([]byte, bool) {
	wav, ok := r.Sound(siteID, kind)
	if !ok {
		return nil, false
	}
	return scaleWAVPCM16LE(wav, r.Volume(siteID)), true
}

func (r *Resolver) group(siteID string) (string, bool) {
	if r.separator == "" {
		return "", false
	}
	idx := strings.Index(siteID, r.separator)
	if idx <= 0 {
		return "", false
	}
	return siteID[:idx], true
}

func clampVolume(v float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= 1 || v != v {
		return 1
	}
	return v
}
