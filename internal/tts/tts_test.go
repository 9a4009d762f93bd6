package tts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"focusbot/pkg/logx"
)

func TestExpandArgv(t *testing.T) {
	t.Parallel()
	got := expandArgv(
		[]string{"gtts-cli", "{{text}}", "--output", "{{out}}"},
		map[string]string{"{{text}}": "hello there", "{{out}}": "/tmp/x.mp3"},
	)
	want := []string{"gtts-cli", "hello there", "--output", "/tmp/x.mp3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expandArgv = %v, want %v", got, want)
		}
	}
}

func TestRendererNoCommand(t *testing.T) {
	t.Parallel()
	r := NewRenderer(Config{CacheDir: t.TempDir()}, logx.Nop())
	if _, err := r.Render(context.Background(), "hi"); err != ErrNoRenderer {
		t.Fatalf("Render error = %v, want ErrNoRenderer", err)
	}
	if _, ok := r.StartupClip(); ok {
		t.Fatal("StartupClip reported a clip with no renderer")
	}
}

func TestRendererWritesOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewRenderer(Config{
		RenderCommand: []string{"sh", "-c", "printf %s '{{text}}' > '{{out}}'"},
		CacheDir:      dir,
	}, logx.Nop())

	path, err := r.Render(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("output = %q", b)
	}

	r.Cleanup(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("Cleanup left the file behind")
	}
}

func TestRendererFailingCommand(t *testing.T) {
	t.Parallel()
	r := NewRenderer(Config{
		RenderCommand: []string{"sh", "-c", "echo render broke >&2; exit 3"},
		CacheDir:      t.TempDir(),
	}, logx.Nop())
	if _, err := r.Render(context.Background(), "hi"); err == nil {
		t.Fatal("failing command reported success")
	}
}

func TestRendererNoOutputFile(t *testing.T) {
	t.Parallel()
	r := NewRenderer(Config{
		RenderCommand: []string{"true", "{{text}}", "{{out}}"},
		CacheDir:      t.TempDir(),
	}, logx.Nop())
	if _, err := r.Render(context.Background(), "hi"); err == nil {
		t.Fatal("missing output file reported success")
	}
}

func TestEnsureStartupCachesClip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := NewRenderer(Config{
		RenderCommand: []string{"sh", "-c", "printf %s '{{text}}' > '{{out}}'"},
		CacheDir:      dir,
		StartupText:   "please wait",
	}, logx.Nop())

	r.EnsureStartup(context.Background())
	clip, ok := r.StartupClip()
	if !ok {
		t.Fatal("no startup clip after EnsureStartup")
	}
	if filepath.Dir(clip) != dir {
		t.Fatalf("clip outside cache dir: %s", clip)
	}

	// The startup clip is exempt from Cleanup.
	r.Cleanup(clip)
	if _, err := os.Stat(clip); err != nil {
		t.Fatal("Cleanup removed the startup clip")
	}
}

func TestNormalizerPassthrough(t *testing.T) {
	t.Parallel()
	n := NewNormalizer(Config{}, logx.Nop())
	got, err := n.Normalize(context.Background(), "/tmp/in.mp3")
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if got != "/tmp/in.mp3" {
		t.Fatalf("passthrough returned %q", got)
	}
}

func TestNormalizerTranscodes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mp3")
	if err := os.WriteFile(in, []byte("audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	n := NewNormalizer(Config{
		NormalizeCommand: []string{"sh", "-c", "cp '{{in}}' '{{out}}'"},
	}, logx.Nop())

	out, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if out != filepath.Join(dir, "in.dca") {
		t.Fatalf("out = %q", out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}
