package bot

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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	site2pdf "github.com/alnah/go-site2pdf"
	"github.com/alnah/go-site2pdf/internal/catalog"
	"github.com/alnah/go-site2pdf/internal/store"
)

// Compile-time interface checks.
var (
	_ Renderer   = (*site2pdf.RendererPool)(nil)
	_ Templates  = (*catalog.Client)(nil)
	_ Workspaces = (*site2pdf.Workspace)(nil)
)

const (
	userChat   = int64(100)
	userID     = int64(7)
	operator   = int64(-500)
	templateA  = "https://acme.webflow.io"
	designName = "Design Websites"
	designSlug = "design-websites"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type sentMessage struct {
	chatID int64
	id     int
	text   string
	doc    string
	kb     *Keyboard
}

type fakeMessenger struct {
	mu       sync.Mutex
	next     int
	sent     []sentMessage
	live     map[int]bool
	answered []string

	docErrs  []error // returned by successive SendDocument calls
	docCalls int
	textErr  map[int64]error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{live: make(map[int]bool), textErr: make(map[int64]error)}
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string, kb *Keyboard) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.textErr[chatID]; err != nil {
		return 0, err
	}
	m.next++
	m.sent = append(m.sent, sentMessage{chatID: chatID, id: m.next, text: text, kb: kb})
	m.live[m.next] = true
	return m.next, nil
}

func (m *fakeMessenger) SendDocument(_ context.Context, chatID int64, path, caption string, kb *Keyboard) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docCalls++
	if len(m.docErrs) > 0 {
		err := m.docErrs[0]
		m.docErrs = m.docErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	m.next++
	m.sent = append(m.sent, sentMessage{chatID: chatID, id: m.next, text: caption, doc: path, kb: kb})
	m.live[m.next] = true
	return m.next, nil
}

func (m *fakeMessenger) Delete(_ context.Context, _ int64, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live[id] {
		return errors.New("message to delete not found")
	}
	delete(m.live, id)
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, id)
	return nil
}

// texts returns every text sent to chatID, in order.
func (m *fakeMessenger) texts(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.chatID == chatID && s.doc == "" {
			out = append(out, s.text)
		}
	}
	return out
}

func (m *fakeMessenger) lastText(chatID int64) string {
	t := m.texts(chatID)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func (m *fakeMessenger) documents() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.doc != "" {
			out = append(out, s)
		}
	}
	return out
}

// liveTexts returns texts of messages that were not deleted.
func (m *fakeMessenger) liveTexts(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.chatID == chatID && s.doc == "" && m.live[s.id] {
			out = append(out, s.text)
		}
	}
	return out
}

type fakeRenderer struct {
	mu    sync.Mutex
	jobs  []site2pdf.RenderJob
	err   error
	queue  chan struct{} // when set, waits for it before allocating, like a busy pool
	queued chan struct{} // when set, signalled once a job is waiting on queue
	block  chan struct{} // when set, Render waits for it or ctx
}

func (r *fakeRenderer) RenderIn(ctx context.Context, job site2pdf.RenderJob, allocate func() (string, error)) (string, *site2pdf.RenderArtifact, error) {
	r.mu.Lock()
	queue, queued := r.queue, r.queued
	r.mu.Unlock()

	job.Progress.Notify(ctx, site2pdf.MilestoneQueued)
	if queue != nil {
		if queued != nil {
			queued <- struct{}{}
		}
		select {
		case <-queue:
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}

	dir, err := allocate()
	if err != nil {
		return "", nil, err
	}
	job.Dir = dir

	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	block, fail := r.block, r.err
	r.mu.Unlock()

	job.Progress.Notify(ctx, site2pdf.MilestoneFetching)
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return dir, nil, fmt.Errorf("%w: %w", site2pdf.ErrNavigation, ctx.Err())
		}
	}
	if fail != nil {
		return dir, nil, fail
	}
	job.Progress.Notify(ctx, site2pdf.MilestoneFinalizing)
	path := filepath.Join(dir, "acme-webflow-io.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		return dir, nil, err
	}
	return dir, &site2pdf.RenderArtifact{Path: path, Bands: 3}, nil
}

func (r *fakeRenderer) jobDirs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dirs []string
	for _, j := range r.jobs {
		dirs = append(dirs, j.Dir)
	}
	return dirs
}

type fakeTemplates struct {
	url string
	err error
}

func (f fakeTemplates) Random(context.Context, string) (string, error) {
	return f.url, f.err
}

type recordingMetrics struct {
	mu         sync.Mutex
	deliveries []string
	throttled  int
}

func (m *recordingMetrics) Delivery(r string) {
	m.mu.Lock()
	m.deliveries = append(m.deliveries, r)
	m.mu.Unlock()
}

func (m *recordingMetrics) Throttled() {
	m.mu.Lock()
	m.throttled++
	m.mu.Unlock()
}

type harness struct {
	bot      *Bot
	msg      *fakeMessenger
	renderer *fakeRenderer
	ws       *site2pdf.Workspace
	store    *store.Memory
	metrics  *recordingMetrics
}

func newHarness(t *testing.T, cfg Config, tmpl fakeTemplates) *harness {
	t.Helper()
	ws, err := site2pdf.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		msg:      newFakeMessenger(),
		renderer: &fakeRenderer{},
		ws:       ws,
		store:    store.NewMemory(0),
		metrics:  &recordingMetrics{},
	}
	if cfg.OperatorChatID == 0 {
		cfg.OperatorChatID = operator
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if tmpl.url == "" && tmpl.err == nil {
		tmpl.url = templateA
	}
	h.bot, err = New(Deps{
		Messenger:  h.msg,
		Renderer:   h.renderer,
		Templates:  tmpl,
		Workspaces: ws,
		Store:      h.store,
		Metrics:    h.metrics,
		Logger:     zap.NewNop(),
	}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// send handles one update and waits for any render it started.
func (h *harness) send(u Update) {
	if u.ChatID == 0 {
		u.ChatID = userChat
	}
	if u.UserID == 0 {
		u.UserID = userID
	}
	h.bot.Handle(context.Background(), u)
	h.bot.Wait()
}

func (h *harness) text(s string) { h.send(Update{Text: s}) }

func (h *harness) press(data string, messageID int) {
	h.send(Update{CallbackID: "cb-" + data, CallbackData: data, MessageID: messageID})
}

// ---------------------------------------------------------------------------
// TestNew
// ---------------------------------------------------------------------------

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	full := Deps{
		Messenger:  newFakeMessenger(),
		Renderer:   &fakeRenderer{},
		Templates:  fakeTemplates{},
		Workspaces: &site2pdf.Workspace{},
		Store:      store.NewMemory(0),
	}
	if _, err := New(full, Config{}); err != nil {
		t.Fatalf("New() with all deps error: %v", err)
	}

	for name, mutate := range map[string]func(*Deps){
		"messenger":  func(d *Deps) { d.Messenger = nil },
		"renderer":   func(d *Deps) { d.Renderer = nil },
		"templates":  func(d *Deps) { d.Templates = nil },
		"workspaces": func(d *Deps) { d.Workspaces = nil },
		"store":      func(d *Deps) { d.Store = nil },
	} {
		d := full
		mutate(&d)
		if _, err := New(d, Config{}); err == nil {
			t.Errorf("New() without %s = nil error", name)
		}
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	got := Config{}.withDefaults()
	if got.JobTimeout != DefaultJobTimeout || got.Grace != DefaultGrace ||
		got.RetryAttempts != DefaultRetryAttempts || got.RetryBaseDelay != DefaultRetryBaseDelay ||
		got.RateBurst != DefaultRateBurst || got.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("withDefaults() = %+v", got)
	}
	if got := (Config{Grace: -1}).withDefaults(); got.Grace != 0 {
		t.Errorf("negative grace = %v, want 0", got.Grace)
	}
}

// ---------------------------------------------------------------------------
// TestBot - Commands and keyboards
// ---------------------------------------------------------------------------

func TestBot_Start(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.send(Update{Text: "/start", Command: "start"})

	sent := h.msg.sent
	if len(sent) != 1 || sent[0].text != textGreeting {
		t.Fatalf("sent = %+v", sent)
	}
	kb := sent[0].kb
	if kb == nil || len(kb.Reply) != 7 {
		t.Fatalf("keyboard = %+v, want 7 rows", kb)
	}
	if kb.Reply[0][0] != "Technology Websites" || kb.Reply[6][1] != "Fashion Websites" {
		t.Errorf("keyboard layout = %v", kb.Reply)
	}
}

func TestBot_UnknownInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.text("hello there")
	h.send(Update{Text: "/help", Command: "help"})

	for _, got := range h.msg.texts(userChat) {
		if got != textUnknownInput {
			t.Errorf("reply = %q, want hint", got)
		}
	}
	if len(h.renderer.jobDirs()) != 0 {
		t.Error("unknown input started a render")
	}
}

// ---------------------------------------------------------------------------
// TestBot - Render and delivery
// ---------------------------------------------------------------------------

func TestBot_CategoryRendersAndDelivers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.text(designName)

	docs := h.msg.documents()
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
	doc := docs[0]
	if doc.chatID != userChat || filepath.Base(doc.doc) != "acme-webflow-io.pdf" {
		t.Errorf("document = %+v", doc)
	}
	if doc.kb == nil || len(doc.kb.Inline) != 3 || doc.kb.Inline[0][0].Data != actionContact {
		t.Errorf("follow-up keyboard = %+v", doc.kb)
	}

	// Waiting message and progress statuses are all removed.
	if live := h.msg.liveTexts(userChat); len(live) != 0 {
		t.Errorf("live status messages = %q", live)
	}
	texts := h.msg.texts(userChat)
	if !strings.Contains(texts[0], templateA) || !strings.Contains(texts[0], designName) {
		t.Errorf("waiting message = %q", texts[0])
	}
	if texts[1] != site2pdf.MilestoneQueued.String() {
		t.Errorf("first status = %q, want queued", texts[1])
	}

	ctx := context.Background()
	if v, _, _ := h.store.Get(ctx, templateKey(userChat, doc.id)); v != templateA {
		t.Errorf("template for PDF message = %q", v)
	}
	if v, _, _ := h.store.Get(ctx, categoryKey(userID)); v != designSlug {
		t.Errorf("current category = %q", v)
	}
	if hist, _ := h.store.Range(ctx, historyKey(userID)); len(hist) != 1 || hist[0] != fmt.Sprintf("%d:%d", userChat, doc.id) {
		t.Errorf("history = %v", hist)
	}
	if _, locked, _ := h.store.Get(ctx, busyKey(userID)); locked {
		t.Error("render lock not released")
	}

	if h.ws.Pending() != 1 {
		t.Errorf("workspace reclaims pending = %d, want 1", h.ws.Pending())
	}
	if fmt.Sprint(h.metrics.deliveries) != "[ok]" {
		t.Errorf("deliveries = %v", h.metrics.deliveries)
	}
}

func TestBot_NoTemplates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{err: catalog.ErrNoTemplates})
	h.text(designName)

	if got := h.msg.lastText(userChat); got != fmt.Sprintf(textNoTemplates, designName) {
		t.Errorf("reply = %q", got)
	}
	if len(h.renderer.jobDirs()) != 0 {
		t.Error("render started without a template")
	}
}

func TestBot_RenderFailureReclaimsWorkspace(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.renderer.err = fmt.Errorf("%w: boom", site2pdf.ErrCapture)
	h.text(designName)

	if got := h.msg.lastText(userChat); got != fmt.Sprintf(textRenderFailed, templateA) {
		t.Errorf("reply = %q", got)
	}
	dirs := h.renderer.jobDirs()
	if len(dirs) != 1 {
		t.Fatalf("renders = %d", len(dirs))
	}
	if _, err := os.Stat(dirs[0]); !os.IsNotExist(err) {
		t.Errorf("workspace %s not reclaimed after failure", dirs[0])
	}
	if len(h.msg.documents()) != 0 {
		t.Error("document sent after failed render")
	}
}

func TestBot_AllocatesWorkspaceAfterQueue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.renderer.queue = make(chan struct{})
	h.renderer.queued = make(chan struct{}, 1)

	h.bot.Handle(context.Background(), Update{ChatID: userChat, UserID: userID, Text: designName})
	select {
	case <-h.renderer.queued:
	case <-time.After(5 * time.Second):
		t.Fatal("render never queued")
	}

	entries, err := os.ReadDir(h.ws.Root())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace has %d directories while the job waits for a renderer", len(entries))
	}

	close(h.renderer.queue)
	h.bot.Wait()

	if len(h.msg.documents()) != 1 {
		t.Errorf("documents = %d, want 1", len(h.msg.documents()))
	}
	if len(h.renderer.jobDirs()) != 1 {
		t.Errorf("renders = %d, want 1", len(h.renderer.jobDirs()))
	}
}

func TestBot_RenderTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{JobTimeout: 20 * time.Millisecond}, fakeTemplates{})
	h.renderer.block = make(chan struct{})
	h.text(designName)

	if got := h.msg.lastText(userChat); got != textRenderTimeout {
		t.Errorf("reply = %q, want timeout text", got)
	}
}

func TestBot_DeliveryRetry(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection reset")

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantDocs  int
		wantKind  string
	}{
		{name: "recovers on third attempt", errs: []error{transient, transient}, wantCalls: 3, wantDocs: 1, wantKind: "retried"},
		{name: "gives up after three attempts", errs: []error{transient, transient, transient}, wantCalls: 3, wantDocs: 0, wantKind: "failed"},
		{name: "rejected is not retried", errs: []error{fmt.Errorf("%w: 403 blocked", ErrRejected)}, wantCalls: 1, wantDocs: 0, wantKind: "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, Config{}, fakeTemplates{})
			h.msg.docErrs = tt.errs
			h.text(designName)

			if h.msg.docCalls != tt.wantCalls {
				t.Errorf("SendDocument calls = %d, want %d", h.msg.docCalls, tt.wantCalls)
			}
			if got := len(h.msg.documents()); got != tt.wantDocs {
				t.Errorf("documents = %d, want %d", got, tt.wantDocs)
			}
			if fmt.Sprint(h.metrics.deliveries) != "["+tt.wantKind+"]" {
				t.Errorf("deliveries = %v, want [%s]", h.metrics.deliveries, tt.wantKind)
			}
			if tt.wantDocs == 0 {
				if got := h.msg.lastText(userChat); got != textDeliveryFailed {
					t.Errorf("reply = %q", got)
				}
				if _, err := os.Stat(h.renderer.jobDirs()[0]); !os.IsNotExist(err) {
					t.Error("workspace kept after failed delivery")
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestBot - Concurrency guards
// ---------------------------------------------------------------------------

func TestBot_SingleRenderPerUser(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	release := make(chan struct{})
	h.renderer.block = release

	ctx := context.Background()
	h.bot.Handle(ctx, Update{ChatID: userChat, UserID: userID, Text: designName})
	h.bot.Handle(ctx, Update{ChatID: userChat, UserID: userID, Text: designName})

	// The first render sends its own messages concurrently, so look for
	// the refusal anywhere in the chat.
	busy := false
	for _, text := range h.msg.texts(userChat) {
		busy = busy || text == textBusy
	}
	if !busy {
		t.Errorf("second request not refused, texts = %q", h.msg.texts(userChat))
	}

	close(release)
	h.bot.Wait()

	if n := len(h.renderer.jobDirs()); n != 1 {
		t.Errorf("renders = %d, want 1", n)
	}

	// Lock released: the next request renders again.
	h.text(designName)
	if n := len(h.renderer.jobDirs()); n != 2 {
		t.Errorf("renders after completion = %d, want 2", n)
	}
}

func TestBot_RateLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{RateLimit: rate.Limit(0.0001), RateBurst: 1}, fakeTemplates{})
	h.text(designName)
	h.text(designName)

	if got := h.msg.lastText(userChat); got != textThrottled {
		t.Errorf("reply = %q, want throttled", got)
	}
	if h.metrics.throttled != 1 {
		t.Errorf("throttled = %d, want 1", h.metrics.throttled)
	}
	if n := len(h.renderer.jobDirs()); n != 1 {
		t.Errorf("renders = %d, want 1", n)
	}

	// Other users have their own bucket.
	h.send(Update{ChatID: 200, UserID: 8, Text: designName})
	if n := len(h.renderer.jobDirs()); n != 2 {
		t.Errorf("renders for second user = %d, want 2", n)
	}
}

// ---------------------------------------------------------------------------
// TestBot - Buttons and contact flow
// ---------------------------------------------------------------------------

func TestBot_ContactFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.text(designName)
	doc := h.msg.documents()[0]

	h.press(actionContact, doc.id)
	if got := h.msg.lastText(userChat); got != textAskEmail {
		t.Fatalf("reply = %q, want email prompt", got)
	}
	if len(h.msg.answered) != 1 {
		t.Errorf("callbacks answered = %d", len(h.msg.answered))
	}

	h.text("not-an-email")
	if got := h.msg.lastText(userChat); got != textInvalidEmail {
		t.Errorf("reply = %q, want invalid email", got)
	}

	h.text("jane@example.com")
	if got := h.msg.lastText(userChat); got != textThanks {
		t.Errorf("reply = %q, want thanks", got)
	}
	op := h.msg.texts(operator)
	if len(op) != 1 || op[0] != fmt.Sprintf(textOperatorContact, "jane@example.com", templateA) {
		t.Errorf("operator messages = %q", op)
	}

	// The request is consumed; a second email is ignored.
	h.text("jane@example.com")
	if n := len(h.msg.texts(operator)); n != 1 {
		t.Errorf("operator messages after repeat = %d", n)
	}
}

func TestBot_ContactFallsBackToLastTemplate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})

	h.press(actionContact, 999)
	if got := h.msg.lastText(userChat); got != textTemplateNotFound {
		t.Errorf("reply without history = %q", got)
	}

	h.text(designName)
	h.press(actionContact, 999)
	if got := h.msg.lastText(userChat); got != textAskEmail {
		t.Errorf("reply with history = %q", got)
	}
	if v, _, _ := h.store.Get(context.Background(), emailKey(userID)); v != templateA {
		t.Errorf("pending template = %q", v)
	}
}

func TestBot_ContactForwardFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.text(designName)
	h.press(actionContact, h.msg.documents()[0].id)
	h.msg.textErr[operator] = errors.New("chat not found")

	h.text("jane@example.com")
	if got := h.msg.lastText(userChat); got != textForwardFailed {
		t.Errorf("reply = %q", got)
	}
	// Still waiting, so the user can retry.
	if _, ok, _ := h.store.Get(context.Background(), emailKey(userID)); !ok {
		t.Error("pending email cleared after failed forward")
	}
}

func TestBot_NewPDF(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})

	h.press(actionNewPDF, 0)
	if got := h.msg.lastText(userChat); got != textCategoryNotFound {
		t.Errorf("reply without category = %q", got)
	}

	h.text(designName)
	h.press(actionNewPDF, h.msg.documents()[0].id)
	if n := len(h.msg.documents()); n != 2 {
		t.Errorf("documents after new_pdf = %d, want 2", n)
	}
	if hist, _ := h.store.Range(context.Background(), historyKey(userID)); len(hist) != 2 {
		t.Errorf("history = %v", hist)
	}
}

func TestBot_ChooseCategory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.press(actionChooseCategory, 0)

	sent := h.msg.sent
	if len(sent) != 1 || sent[0].text != textChooseCategory || sent[0].kb == nil || len(sent[0].kb.Reply) == 0 {
		t.Errorf("sent = %+v", sent)
	}
}

// ---------------------------------------------------------------------------
// TestBot_Run
// ---------------------------------------------------------------------------

func TestBot_Run(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	updates := make(chan Update, 2)
	updates <- Update{ChatID: userChat, UserID: userID, Text: "/start", Command: "start"}
	updates <- Update{ChatID: userChat, UserID: userID, Text: designName}
	close(updates)

	if err := h.bot.Run(context.Background(), updates); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// Run waits for the background render.
	if n := len(h.msg.documents()); n != 1 {
		t.Errorf("documents = %d, want 1", n)
	}
}

func TestBot_Run_CancelStopsRenders(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{}, fakeTemplates{})
	h.renderer.block = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan Update, 1)
	updates <- Update{ChatID: userChat, UserID: userID, Text: designName}

	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx, updates) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(h.renderer.jobDirs()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("render never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if _, locked, _ := h.store.Get(context.Background(), busyKey(userID)); locked {
		t.Error("render lock left behind after shutdown")
	}
}
