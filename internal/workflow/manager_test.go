package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"storyreel/internal/compositor"
	"storyreel/internal/config"
	"storyreel/internal/eventlog"
	"storyreel/internal/logging"
	"storyreel/internal/media/ffprobe"
	"storyreel/internal/narration"
	"storyreel/internal/pipeline"
	"storyreel/internal/services"
	"storyreel/internal/session"
	"storyreel/internal/store"
	"storyreel/internal/testsupport"
	"storyreel/internal/workflow"
)

type fakeStory struct {
	err error
}

func (f fakeStory) AdaptStory(_ context.Context, title string) (session.Story, []session.Scene, error) {
	if f.err != nil {
		return session.Story{}, nil, f.err
	}
	story := session.Story{
		Title:                title,
		Summary:              "A keeper tends a light.",
		VisualStyle:          "watercolor",
		CharacterDescription: "an old keeper in a yellow coat",
	}
	scenes := make([]session.Scene, 3)
	for i := range scenes {
		scenes[i] = session.Scene{
			TextEn:       fmt.Sprintf("Night %d falls.", i+1),
			TextZh:       fmt.Sprintf("第%d夜降临。", i+1),
			VisualPrompt: "a lighthouse at dusk",
			VoiceMood:    "calm",
			Status:       session.StatusPending,
		}
	}
	return story, scenes, nil
}

type fakeImage struct{}

func (fakeImage) RenderReferenceImage(context.Context, session.Story, session.VideoSettings) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

type fakeVideo struct {
	t *testing.T

	mu      sync.Mutex
	failID  int
	block   chan struct{}
	started chan int
}

func (f *fakeVideo) setFail(id int) {
	f.mu.Lock()
	f.failID = id
	f.mu.Unlock()
}

func (f *fakeVideo) RenderSceneVideo(ctx context.Context, scene session.Scene, _ session.ReferenceImage, _ session.VideoSettings, dest string) error {
	if f.started != nil {
		f.started <- scene.ID
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	fail := f.failID == scene.ID
	f.mu.Unlock()
	if fail {
		return errors.New("backend rejected prompt")
	}
	testsupport.WriteClip(f.t, dest)
	return nil
}

type fakeNarrator struct {
	t *testing.T
}

func (f fakeNarrator) Narrate(_ context.Context, scene session.Scene, dest string) (narration.Track, error) {
	testsupport.WriteNarration(f.t, dest, 32)
	return narration.Track{
		AudioPath: dest,
		Voice:     "alloy",
		Duration:  1.5,
		Subtitles: []session.SubtitleLine{{TextEn: scene.TextEn, TextZh: scene.TextZh, StartTime: 0, EndTime: 1.5}},
	}, nil
}

type fakeProber struct{}

func (fakeProber) Probe(_ context.Context, path string) (ffprobe.Result, error) {
	if strings.HasSuffix(path, ".wav") {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{CodecType: "audio"}},
			Format:  ffprobe.Format{Duration: "1.0"},
		}, nil
	}
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", Width: 1280, Height: 720}},
		Format:  ffprobe.Format{Duration: "8.0"},
	}, nil
}

type fileRecorder struct {
	frames int
}

func (r *fileRecorder) Start(context.Context, compositor.Size, int) error    { return nil }
func (r *fileRecorder) BeginScene(context.Context, int, session.Scene) error { return nil }
func (r *fileRecorder) WriteFrame(context.Context, compositor.Frame) error   { r.frames++; return nil }
func (r *fileRecorder) EndScene(context.Context) error                       { return nil }
func (r *fileRecorder) Abort()                                               {}
func (r *fileRecorder) Finish(_ context.Context, dest string) error {
	return os.WriteFile(dest, make([]byte, r.frames), 0o644)
}

type harness struct {
	cfg   *config.Config
	store *store.Store
	video *fakeVideo
	mgr   *workflow.Manager
}

func newHarness(t *testing.T, story fakeStory) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	video := &fakeVideo{t: t}
	mgr := newManager(t, cfg, st, story, video)
	if err := mgr.Open(context.Background(), ""); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return &harness{cfg: cfg, store: st, video: video, mgr: mgr}
}

func newManager(t *testing.T, cfg *config.Config, st *store.Store, story fakeStory, video *fakeVideo) *workflow.Manager {
	t.Helper()
	mgr, err := workflow.NewManager(cfg, st, workflow.Dependencies{
		Story:       story,
		Image:       fakeImage{},
		Video:       video,
		Narrator:    fakeNarrator{t: t},
		Prober:      fakeProber{},
		NewRecorder: func(string) compositor.Recorder { return &fileRecorder{} },
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func (h *harness) messages(t *testing.T, id string) []string {
	t.Helper()
	entries, err := h.store.Events(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func (h *harness) kinds(t *testing.T, id string) map[string]int {
	t.Helper()
	entries, err := h.store.Events(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	out := map[string]int{}
	for _, e := range entries {
		out[e.Kind]++
	}
	return out
}

func TestFullPipelineToExport(t *testing.T) {
	h := newHarness(t, fakeStory{})
	ctx := context.Background()

	sess, err := h.mgr.CreateStory(ctx, "The Lighthouse Keeper")
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	if sess.Step != session.StepStoryGen || len(sess.Scenes) != 3 || sess.Scenes[2].ID != 3 {
		t.Fatalf("unexpected session after story: step=%s scenes=%d", sess.Step, len(sess.Scenes))
	}

	if _, _, err := h.mgr.GenerateVideos(ctx); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error without reference image, got %v", err)
	}

	sess, err = h.mgr.GenerateReferenceImage(ctx)
	if err != nil {
		t.Fatalf("GenerateReferenceImage: %v", err)
	}
	if sess.ReferenceImage == nil || sess.Step != session.StepRefImageGen {
		t.Fatalf("expected reference image at ref-image-gen, got step %s", sess.Step)
	}
	if _, err := os.Stat(sess.ReferenceImage.Path); err != nil {
		t.Fatalf("reference image not written: %v", err)
	}

	sess, report, err := h.mgr.GenerateVideos(ctx)
	if err != nil {
		t.Fatalf("GenerateVideos: %v", err)
	}
	if report.Completed != 3 || sess.Step != session.StepFinished || !sess.AllCompleted() {
		t.Fatalf("unexpected batch result: %+v step=%s", report, sess.Step)
	}
	if err := sess.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	var completed []string
	for _, msg := range h.messages(t, sess.ID) {
		if strings.HasSuffix(msg, " completed") && strings.HasPrefix(msg, "Scene ") {
			completed = append(completed, msg)
		}
	}
	want := []string{"Scene 1 completed", "Scene 2 completed", "Scene 3 completed"}
	if fmt.Sprint(completed) != fmt.Sprint(want) {
		t.Fatalf("completed log = %v, want %v", completed, want)
	}

	var progress []int
	path, err := h.mgr.Export(ctx, func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filepath.Base(path) != "the_lighthouse_keeper.mp4" || filepath.Dir(path) != h.cfg.Paths.ExportDir {
		t.Fatalf("unexpected export path %s", path)
	}
	if fmt.Sprint(progress) != "[0 33 67]" {
		t.Fatalf("unexpected progress %v", progress)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("export not written: %v", err)
	}
}

func TestGenerateVideosIsolatesSceneFailure(t *testing.T) {
	h := newHarness(t, fakeStory{})
	ctx := context.Background()
	mustPrepare(t, h)
	h.video.setFail(2)

	sess, report, err := h.mgr.GenerateVideos(ctx)
	if err != nil {
		t.Fatalf("GenerateVideos: %v", err)
	}
	if report.Failed != 1 || report.Completed != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if sess.Step != session.StepFinished {
		t.Fatalf("step should reach finished despite failure, got %s", sess.Step)
	}
	if sess.Scenes[1].Status != session.StatusError || sess.Scenes[1].HasAnyAsset() {
		t.Fatalf("scene 2 should be error without assets: %+v", sess.Scenes[1])
	}

	if _, err := h.mgr.Export(ctx, nil); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("export with an errored scene should be a precondition error, got %v", err)
	}

	h.video.setFail(0)
	sess, err = h.mgr.RegenerateScene(ctx, 1)
	if err != nil {
		t.Fatalf("RegenerateScene: %v", err)
	}
	if !sess.AllCompleted() {
		t.Fatalf("expected all scenes completed after retry")
	}
}

func TestGenerateVideosSecondRunDoesNoWork(t *testing.T) {
	h := newHarness(t, fakeStory{})
	ctx := context.Background()
	mustPrepare(t, h)
	if _, _, err := h.mgr.GenerateVideos(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	_, report, err := h.mgr.GenerateVideos(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Attempted != 0 || report.Skipped != 3 {
		t.Fatalf("second run should skip everything, got %+v", report)
	}
}

func TestCriticalEditInvalidatesReference(t *testing.T) {
	h := newHarness(t, fakeStory{})
	ctx := context.Background()
	mustPrepare(t, h)
	if _, _, err := h.mgr.GenerateVideos(ctx); err != nil {
		t.Fatalf("GenerateVideos: %v", err)
	}

	sess, err := h.mgr.EditStoryField(ctx, session.StorySummary, "A different summary.")
	if err != nil {
		t.Fatalf("EditStoryField summary: %v", err)
	}
	if sess.ReferenceImage == nil || sess.Step != session.StepFinished {
		t.Fatalf("non-critical edit must not invalidate")
	}

	sess, err = h.mgr.EditStoryField(ctx, session.StoryVisualStyle, "charcoal sketch")
	if err != nil {
		t.Fatalf("EditStoryField style: %v", err)
	}
	if sess.ReferenceImage != nil || sess.Step != session.StepStoryGen {
		t.Fatalf("critical edit should clear reference and demote, got step %s", sess.Step)
	}
	kinds := h.kinds(t, sess.ID)
	if kinds["reference_invalidated"] != 1 || kinds["step_demoted"] != 1 {
		t.Fatalf("expected invalidation entries, got %v", kinds)
	}

	if _, err := h.mgr.JumpTo(ctx, session.StepVideoGen); !pipeline.IsPrerequisite(err) {
		t.Fatalf("forward jump without reference should fail, got %v", err)
	}
	sess, err = h.mgr.JumpTo(ctx, session.StepInput)
	if err != nil || sess.Step != session.StepInput {
		t.Fatalf("backward jump should succeed: %v", err)
	}
}

func TestSceneEditsAndDelete(t *testing.T) {
	h := newHarness(t, fakeStory{})
	ctx := context.Background()
	mustPrepare(t, h)
	if _, _, err := h.mgr.GenerateVideos(ctx); err != nil {
		t.Fatalf("GenerateVideos: %v", err)
	}

	sess, err := h.mgr.EditSceneField(ctx, 0, session.SceneTextEn, "Night 1 falls.")
	if err != nil || sess.Scenes[0].Status != session.StatusCompleted {
		t.Fatalf("same-value edit must be a no-op: %v %s", err, sess.Scenes[0].Status)
	}
	sess, err = h.mgr.EditSceneField(ctx, 0, session.SceneTextEn, "The storm arrives.")
	if err != nil || sess.Scenes[0].Status != session.StatusPending || sess.Scenes[0].HasAnyAsset() {
		t.Fatalf("changed edit must reset the scene: %v %+v", err, sess.Scenes[0])
	}

	if _, err := h.mgr.SelectScene(ctx, 2); err != nil {
		t.Fatalf("SelectScene: %v", err)
	}
	sess, err = h.mgr.DeleteScene(ctx, 2)
	if err != nil {
		t.Fatalf("DeleteScene: %v", err)
	}
	if len(sess.Scenes) != 2 || sess.Scenes[1].ID != 2 || sess.ActiveScene != 1 {
		t.Fatalf("unexpected session after delete: %d scenes, active %d", len(sess.Scenes), sess.ActiveScene)
	}

	sess, err = h.mgr.AddScene(ctx)
	if err != nil || len(sess.Scenes) != 3 || sess.Scenes[2].ID != 3 || sess.ActiveScene != 2 {
		t.Fatalf("AddScene: %v", err)
	}
	if _, err := h.mgr.SelectScene(ctx, 7); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEditsRejectedWhileGenerating(t *testing.T) {
	h := newHarness(t, fakeStory{})
	mustPrepare(t, h)
	h.video.block = make(chan struct{})
	h.video.started = make(chan int, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, _, err := h.mgr.GenerateVideos(ctx)
		done <- err
	}()
	select {
	case <-h.video.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation never started")
	}

	bg := context.Background()
	if _, err := h.mgr.EditSceneField(bg, 0, session.SceneVisualPrompt, "x"); !errors.Is(err, services.ErrBusy) {
		t.Fatalf("edit during batch should be busy, got %v", err)
	}
	if _, err := h.mgr.JumpTo(bg, session.StepInput); !errors.Is(err, services.ErrBusy) {
		t.Fatalf("jump during batch should be busy, got %v", err)
	}
	if _, err := h.mgr.Export(bg, nil); !errors.Is(err, services.ErrBusy) {
		t.Fatalf("export during batch should be busy, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not stop")
	}

	sess, err := h.mgr.Snapshot(bg)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if sess.Step != session.StepVideoGen {
		t.Fatalf("cancelled batch should stay at video-gen, got %s", sess.Step)
	}
	for i, scene := range sess.Scenes {
		if scene.Status != session.StatusPending {
			t.Fatalf("scene %d should be pending after cancel, got %s", i+1, scene.Status)
		}
	}
	if _, err := h.mgr.EditSceneField(bg, 0, session.SceneVisualPrompt, "x"); err != nil {
		t.Fatalf("edit after cancel: %v", err)
	}
}

func TestCreateStoryFailureIsLogged(t *testing.T) {
	h := newHarness(t, fakeStory{err: services.Wrap(services.ErrInput, "story", "decode", "reply is not valid story JSON", nil)})
	sess, err := h.mgr.CreateStory(context.Background(), "Unknown Book")
	if !errors.Is(err, services.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
	if sess.Step != session.StepInput || sess.HasStory() {
		t.Fatalf("failed adaptation must leave an empty session at input")
	}
	entries, err := h.store.Events(context.Background(), sess.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	last := entries[len(entries)-1]
	if last.Level != eventlog.LevelError || last.Kind != "input" {
		t.Fatalf("expected input error entry, got %+v", last)
	}
}

func TestOpenReclaimsGeneratingScenes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	sess := testsupport.SampleSession("crashed", 2)
	sess.Scenes[1].Status = session.StatusGenerating
	if err := st.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	mgr := newManager(t, cfg, st, fakeStory{}, &fakeVideo{t: t})
	if err := mgr.Open(context.Background(), "crashed"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := mgr.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.Scenes[1].Status != session.StatusPending {
		t.Fatalf("expected reclaimed scene pending, got %s", got.Scenes[1].Status)
	}
	stored, err := st.LoadSession(context.Background(), "crashed")
	if err != nil || stored.Scenes[1].Status != session.StatusPending {
		t.Fatalf("reclaim not persisted: %v", err)
	}
}

func TestSecondManagerIsLocked(t *testing.T) {
	h := newHarness(t, fakeStory{})
	other := newManager(t, h.cfg, h.store, fakeStory{}, &fakeVideo{t: t})
	if err := other.Open(context.Background(), ""); !errors.Is(err, workflow.ErrLocked) {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestOperationsNeedSession(t *testing.T) {
	h := newHarness(t, fakeStory{})
	if _, err := h.mgr.Snapshot(context.Background()); !errors.Is(err, workflow.ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}
	if _, err := h.mgr.AddScene(context.Background()); !errors.Is(err, workflow.ErrNoSession) {
		t.Fatalf("expected no session, got %v", err)
	}
}

func mustPrepare(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.mgr.CreateStory(ctx, "The Lighthouse Keeper"); err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	if _, err := h.mgr.GenerateReferenceImage(ctx); err != nil {
		t.Fatalf("GenerateReferenceImage: %v", err)
	}
}
