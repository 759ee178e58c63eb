package media

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/nijaru/yt-clip/scripts"
	"github.com/nijaru/yt-clip/subtitles"
)

// TestFFmpegEndToEnd exercises the real binaries on a generated source. It
// skips when ffmpeg, ffprobe or the needed encoders are unavailable.
func TestFFmpegEndToEnd(t *testing.T) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not on PATH", bin)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	gen := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=6:size=641x361:rate=10",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=6",
		"-shortest", "-c:v", "libx264", "-c:a", "aac", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate source (encoder missing?): %v\n%s", err, out)
	}

	runner := scripts.NewExecRunner(nil)
	clipper := NewClipper(runner, "ffmpeg", WithProbe(FFprobe(runner, "ffprobe")))

	clipPath := filepath.Join(dir, "Test_Video_1700000000.mp4")
	clip, err := clipper.Clip(ctx, ClipRequest{
		SourcePath: src,
		OutputPath: clipPath,
		Start:      Timecode(1),
		End:        Timecode(4),
		Format:     FormatMP4,
		Quality:    QualityLow,
	})
	if err != nil {
		t.Fatalf("Clip() error = %v", err)
	}
	if clip.Height != 360 || clip.Width%2 != 0 {
		t.Errorf("expected even dimensions at 360p, got %dx%d", clip.Width, clip.Height)
	}
	if clip.Duration < 2.5 || clip.Duration > 3.5 {
		t.Errorf("expected ~3s clip, got %.2fs", clip.Duration)
	}

	wav, err := NewAudioExtractor(runner, "ffmpeg").ExtractAudio(ctx, clipPath, dir)
	if err != nil {
		t.Fatalf("ExtractAudio() error = %v", err)
	}
	probe, err := FFprobe(runner, "ffprobe")(ctx, wav)
	if err != nil || !probe.HasAudio() {
		t.Fatalf("expected audio stream in %s: %v", wav, err)
	}

	srt, err := subtitles.Write(subtitles.Track{{Start: 0, End: 2.5, Text: "Hello"}}, dir, "Test_Video_1700000000")
	if err != nil {
		t.Fatal(err)
	}

	subtitled, err := NewEmbedder(runner, "ffmpeg").Embed(ctx, EmbedRequest{ClipPath: clipPath, SubtitlePath: srt, Format: FormatMP4})
	if err != nil {
		t.Skipf("subtitles filter unavailable in this ffmpeg build: %v", err)
	}
	if info, err := os.Stat(subtitled.Path); err != nil || info.Size() == 0 {
		t.Errorf("expected non-empty subtitled clip: %v", err)
	}
}
