// Package tts shells out to external tools for announcement audio: a
// text-to-speech command renders speech, and a normalize command
// transcodes/levels the result into the playback format. Both are
// opaque, best-effort collaborators; every failure here degrades a
// session instead of aborting it.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"focusbot/pkg/logx"
)

var ErrNoRenderer = errors.New("no render command configured")

const startupClipName = "startup.dca"

type Config struct {
	// RenderCommand is an argv template; {{text}} and {{out}} are
	// substituted before exec.
	RenderCommand []string
	// NormalizeCommand is an argv template; {{in}} and {{out}} are
	// substituted before exec. Empty means pass audio through untouched.
	NormalizeCommand []string
	// CacheDir holds rendered files and the startup clip.
	CacheDir string
	// StartupText is rendered once into the startup clip.
	StartupText string
	// Timeout bounds a single tool invocation.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.CacheDir) == "" {
		c.CacheDir = "./tts-cache"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

type Renderer struct {
	cfg Config
	log logx.Logger

	startupPath string
}

func NewRenderer(cfg Config, log logx.Logger) *Renderer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Renderer{cfg: cfg.withDefaults(), log: log}
}

// EnsureStartup pre-renders the "please wait" clip so sessions can play
// it immediately while the main announcement renders. Best-effort: a
// failure only means sessions start without the fallback clip.
func (r *Renderer) EnsureStartup(ctx context.Context) {
	if strings.TrimSpace(r.cfg.StartupText) == "" || len(r.cfg.RenderCommand) == 0 {
		return
	}
	path := filepath.Join(r.cfg.CacheDir, startupClipName)
	if _, err := os.Stat(path); err == nil {
		r.startupPath = path
		return
	}
	raw, err := r.renderTo(ctx, r.cfg.StartupText, path+".raw")
	if err != nil {
		r.log.Warn("startup clip render failed", logx.Err(err))
		return
	}

	if len(r.cfg.NormalizeCommand) == 0 {
		if err := os.Rename(raw, path); err != nil {
			r.log.Warn("startup clip cache failed", logx.Err(err))
			return
		}
	} else {
		norm := NewNormalizer(r.cfg, r.log)
		if _, err := norm.normalizeTo(ctx, raw, path); err != nil {
			os.Remove(raw)
			r.log.Warn("startup clip normalize failed", logx.Err(err))
			return
		}
		os.Remove(raw)
	}
	r.startupPath = path
	r.log.Info("startup clip cached", logx.String("path", path))
}

// StartupClip returns the cached clip path if one was rendered.
func (r *Renderer) StartupClip() (string, bool) {
	if r.startupPath == "" {
		return "", false
	}
	if _, err := os.Stat(r.startupPath); err != nil {
		return "", false
	}
	return r.startupPath, true
}

// Render produces an audio file for the given text.
func (r *Renderer) Render(ctx context.Context, text string) (string, error) {
	out := filepath.Join(r.cfg.CacheDir, fmt.Sprintf("announce-%d.raw", time.Now().UnixNano()))
	return r.renderTo(ctx, text, out)
}

func (r *Renderer) renderTo(ctx context.Context, text, out string) (string, error) {
	if len(r.cfg.RenderCommand) == 0 {
		return "", ErrNoRenderer
	}
	if err := os.MkdirAll(r.cfg.CacheDir, 0o755); err != nil {
		return "", err
	}
	argv := expandArgv(r.cfg.RenderCommand, map[string]string{
		"{{text}}": text,
		"{{out}}":  out,
	})
	if err := r.execTool(ctx, argv); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("render produced no output: %w", err)
	}
	return out, nil
}

// Cleanup removes a rendered file. The cached startup clip is kept.
func (r *Renderer) Cleanup(path string) {
	if path == "" || path == r.startupPath {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.log.Debug("cleanup failed", logx.String("path", path), logx.Err(err))
	}
}

type Normalizer struct {
	cfg Config
	log logx.Logger
}

func NewNormalizer(cfg Config, log logx.Logger) *Normalizer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Normalizer{cfg: cfg.withDefaults(), log: log}
}

// Normalize transcodes/levels an audio file. With no command configured
// the input passes through untouched.
func (n *Normalizer) Normalize(ctx context.Context, in string) (string, error) {
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".dca"
	return n.normalizeTo(ctx, in, out)
}

func (n *Normalizer) normalizeTo(ctx context.Context, in, out string) (string, error) {
	if len(n.cfg.NormalizeCommand) == 0 {
		return in, nil
	}
	argv := expandArgv(n.cfg.NormalizeCommand, map[string]string{
		"{{in}}":  in,
		"{{out}}": out,
	})
	if err := n.execTool(ctx, argv); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("normalize produced no output: %w", err)
	}
	return out, nil
}

func (r *Renderer) execTool(ctx context.Context, argv []string) error {
	return runTool(ctx, r.cfg.Timeout, argv)
}

func (n *Normalizer) execTool(ctx context.Context, argv []string) error {
	return runTool(ctx, n.cfg.Timeout, argv)
}

func runTool(ctx context.Context, timeout time.Duration, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", argv[0], err, tail(string(out), 200))
	}
	return nil
}

func expandArgv(argv []string, repl map[string]string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		for k, v := range repl {
			a = strings.ReplaceAll(a, k, v)
		}
		out[i] = a
	}
	return out
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
