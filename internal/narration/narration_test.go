package narration

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"storyreel/internal/services"
	"storyreel/internal/session"
)

const testRate = 24000

// fakeSpeech returns len(text)*0.1s of silence per sentence so windows are
// predictable.
type fakeSpeech struct {
	mu     sync.Mutex
	voices []string
	fail   string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text, voice string) ([]byte, error) {
	f.mu.Lock()
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	if f.fail != "" && strings.Contains(text, f.fail) {
		return nil, errors.New("backend exploded")
	}
	samples := len([]rune(text)) * testRate / 10
	return make([]byte, samples*2), nil
}

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"No punctuation here", []string{"No punctuation here"}},
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"Wait?! Really...", []string{"Wait?!", "Really..."}},
		{"Start. trailing fragment", []string{"Start.", "trailing fragment"}},
		{"从前有座山。山里有座庙！", []string{"从前有座山。", "山里有座庙！"}},
		{"  ...  ", []string{"..."}},
	}
	for _, tc := range cases {
		if got := SplitSentences(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SplitSentences(%q) = %#v want %#v", tc.in, got, tc.want)
		}
	}
}

func TestPairCaptions(t *testing.T) {
	cases := []struct {
		name   string
		source []string
		target []string
		want   []string
	}{
		{"equal", []string{"a", "b"}, []string{"甲", "乙"}, []string{"甲", "乙"}},
		{"more target", []string{"a", "b"}, []string{"甲", "乙", "丙"}, []string{"甲", "乙丙"}},
		{"fewer target", []string{"a", "b", "c"}, []string{"甲"}, []string{"甲", "", ""}},
		{"no target", []string{"a"}, nil, []string{""}},
		{"single source", []string{"a"}, []string{"甲", "乙"}, []string{"甲乙"}},
	}
	for _, tc := range cases {
		if got := PairCaptions(tc.source, tc.target); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %#v want %#v", tc.name, got, tc.want)
		}
	}
}

func TestVoiceTableFirstMatchWins(t *testing.T) {
	table := NewVoiceTable("alloy")
	cases := []struct{ mood, want string }{
		{"", "alloy"},
		{"neutral", "alloy"},
		{"Calm and gentle", "shimmer"},
		{"DRAMATIC", "onyx"},
		{"tense but calm", "onyx"},
		{"melancholic", "sage"},
		{"mysterious", "ash"},
	}
	for _, tc := range cases {
		if got := table.Select(tc.mood); got != tc.want {
			t.Fatalf("Select(%q) = %q want %q", tc.mood, got, tc.want)
		}
	}
}

func TestBuildTimesSentencesCumulatively(t *testing.T) {
	speech := &fakeSpeech{}
	b := NewBuilder(speech, NewVoiceTable("alloy"), testRate, nil)

	n, err := b.Build(context.Background(), "Hi there. Bye.", "你好。再见。", "happy")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Voice != "nova" {
		t.Fatalf("expected happy mood to pick nova, got %q", n.Voice)
	}
	if len(n.Subtitles) != 2 {
		t.Fatalf("expected 2 subtitle lines, got %d", len(n.Subtitles))
	}
	first, second := n.Subtitles[0], n.Subtitles[1]
	if first.StartTime != 0 || math.Abs(first.EndTime-0.9) > 1e-9 {
		t.Fatalf("unexpected first window %+v", first)
	}
	if first.EndTime != second.StartTime || math.Abs(second.EndTime-1.3) > 1e-9 {
		t.Fatalf("unexpected second window %+v", second)
	}
	if first.TextZh != "你好。" || second.TextZh != "再见。" {
		t.Fatalf("unexpected captions %+v", n.Subtitles)
	}
	if math.Abs(n.Duration-1.3) > 1e-9 {
		t.Fatalf("unexpected duration %v", n.Duration)
	}
	if SampleCount(n.PCM) != 31200 {
		t.Fatalf("unexpected sample count %d", SampleCount(n.PCM))
	}
	if err := session.CheckSubtitles(n.Subtitles); err != nil {
		t.Fatalf("subtitles invalid: %v", err)
	}
	for i := 1; i < len(n.Subtitles); i++ {
		if n.Subtitles[i].StartTime <= n.Subtitles[i-1].StartTime {
			t.Fatalf("start times not strictly ascending at %d", i)
		}
	}
}

func TestBuildMergesExtraTargetSentences(t *testing.T) {
	b := NewBuilder(&fakeSpeech{}, NewVoiceTable("alloy"), testRate, nil)
	n, err := b.Build(context.Background(), "One. Two.", "一。二。三。", "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n.Subtitles[1].TextZh != "二。三。" {
		t.Fatalf("expected merged tail caption, got %q", n.Subtitles[1].TextZh)
	}
}

func TestBuildFailsOnSentenceError(t *testing.T) {
	b := NewBuilder(&fakeSpeech{fail: "Two"}, NewVoiceTable("alloy"), testRate, nil)
	_, err := b.Build(context.Background(), "One. Two.", "", "")
	if !errors.Is(err, services.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestBuildRejectsEmptyText(t *testing.T) {
	b := NewBuilder(&fakeSpeech{}, NewVoiceTable("alloy"), testRate, nil)
	if _, err := b.Build(context.Background(), "   ", "", ""); !errors.Is(err, services.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestNarrateWritesWAV(t *testing.T) {
	b := NewBuilder(&fakeSpeech{}, NewVoiceTable("alloy"), testRate, nil)
	dest := filepath.Join(t.TempDir(), "scene-01.wav")
	track, err := b.Narrate(context.Background(), session.Scene{ID: 1, TextEn: "Hello world."}, dest)
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if track.AudioPath != dest {
		t.Fatalf("unexpected path %q", track.AudioPath)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	rate, samples, err := ReadWAVInfo(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadWAVInfo: %v", err)
	}
	if rate != testRate {
		t.Fatalf("unexpected rate %d", rate)
	}
	if got := Seconds(samples, rate); math.Abs(got-track.Duration) > 1e-9 {
		t.Fatalf("wav duration %v does not match track %v", got, track.Duration)
	}
}

func TestWriteWAVDropsOddByte(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, []byte{1, 2, 3}, 8000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	if buf.Len() != wavHeaderSize+2 {
		t.Fatalf("unexpected wav size %d", buf.Len())
	}
}
