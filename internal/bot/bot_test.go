package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/screenshot-bot/internal/broadcast"
	"github.com/maauso/screenshot-bot/internal/screenshot"
	"github.com/maauso/screenshot-bot/internal/session"
	"github.com/maauso/screenshot-bot/internal/storage"
	"github.com/maauso/screenshot-bot/internal/userstore"
)

const adminID = 42

// fakeClient records every outgoing call.
type fakeClient struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	groups   []tgbotapi.MediaGroupConfig
	copies   []tgbotapi.CopyMessageConfig

	copyErr  error
	groupErr error
	photoErr error
	fileURL  string
	updates  chan tgbotapi.Update
	stopped  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{nextID: 100, updates: make(chan tgbotapi.Update)}
}

func (f *fakeClient) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeClient) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := c.(tgbotapi.PhotoConfig); ok && f.photoErr != nil {
		return tgbotapi.Message{}, f.photoErr
	}
	f.sent = append(f.sent, c)
	f.nextID++

	var chatID int64
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		chatID = m.ChatID
	case tgbotapi.EditMessageTextConfig:
		chatID = m.ChatID
	}
	return tgbotapi.Message{MessageID: f.nextID, Chat: &tgbotapi.Chat{ID: chatID}}, nil
}

func (f *fakeClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeClient) SendMediaGroup(cfg tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	f.groups = append(f.groups, cfg)
	return make([]tgbotapi.Message, len(cfg.Media)), nil
}

func (f *fakeClient) CopyMessage(cfg tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, cfg)
	return tgbotapi.MessageID{MessageID: 1}, f.copyErr
}

func (f *fakeClient) GetFileDirectURL(fileID string) (string, error) {
	if f.fileURL == "" {
		return "", errors.New("file not found")
	}
	return f.fileURL + "/" + fileID, nil
}

// texts returns the text of every sent message and edit, in order.
func (f *fakeClient) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

// photos returns every single photo sent, in order.
func (f *fakeClient) photos() []tgbotapi.PhotoConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.PhotoConfig
	for _, c := range f.sent {
		if p, ok := c.(tgbotapi.PhotoConfig); ok {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeClient) callbacks() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) Run(ctx context.Context, req screenshot.Request, d screenshot.Delivery) (screenshot.Result, error) {
	args := m.Called(ctx, req, d)
	return args.Get(0).(screenshot.Result), args.Error(1)
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Run(ctx context.Context, msg broadcast.Message) (broadcast.Report, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(broadcast.Report), args.Error(1)
}

type testBot struct {
	*Bot
	client      *fakeClient
	pipeline    *mockPipeline
	broadcaster *mockBroadcaster
	users       *userstore.MemoryStore
	sessions    *session.Store
	dir         string
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	tb := &testBot{
		client:      newFakeClient(),
		pipeline:    &mockPipeline{},
		broadcaster: &mockBroadcaster{},
		users:       userstore.NewMemoryStore(),
		sessions:    session.NewStore(files, nil),
		dir:         dir,
	}
	tb.Bot = New(tb.client, Deps{
		Sessions:    tb.sessions,
		Pipeline:    tb.pipeline,
		Users:       tb.users,
		Broadcaster: tb.broadcaster,
		Files:       files,
	}, adminID, nil)
	return tb
}

func privateMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ann", UserName: "ann"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
}

func commandMessage(userID int64, command string) *tgbotapi.Message {
	msg := privateMessage(userID, command)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	return msg
}

func videoMessage(userID int64, name string, size int) *tgbotapi.Message {
	msg := privateMessage(userID, "")
	msg.Video = &tgbotapi.Video{FileID: "file-" + name, FileName: name, FileSize: size}
	return msg
}

func countCallback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{
			MessageID: 20,
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		},
		Data: data,
	}
}

func serveFile(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestIsSupported(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"movie.mp4", true},
		{"movie.MKV", true},
		{"Movie.Mp4", true},
		{"movie.avi", false},
		{"movie.mp4.txt", false},
		{"mp4", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupported(tt.name))
		})
	}
}

func TestCountKeyboard(t *testing.T) {
	kb := CountKeyboard()
	require.Len(t, kb.InlineKeyboard, 4)

	n := 0
	for _, row := range kb.InlineKeyboard {
		require.Len(t, row, 5)
		for _, btn := range row {
			n++
			assert.Equal(t, fmt.Sprint(n), btn.Text)
			require.NotNil(t, btn.CallbackData)
			assert.Equal(t, fmt.Sprintf("ss_%d", n), *btn.CallbackData)
		}
	}
	assert.Equal(t, 20, n)
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		data   string
		want   int
		wantOK bool
	}{
		{"ss_1", 1, true},
		{"ss_20", 20, true},
		{"ss_0", 0, false},
		{"ss_21", 0, false},
		{"ss_", 0, false},
		{"ss_-1", 0, false},
		{"ss_3x", 0, false},
		{"xss_3", 0, false},
		{"other", 0, false},
		{"ss_99999999999999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, ok := ParseCount(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandleUpload_Unsupported(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: videoMessage(5, "clip.avi", 10)})

	assert.Equal(t, []string{textUnsupported}, tb.client.texts())
	assert.Equal(t, 0, tb.sessions.Len())
	n, _ := tb.users.Value(context.Background(), userstore.CounterFilesProcessed)
	assert.Zero(t, n)
}

func TestHandleUpload_StoresSession(t *testing.T) {
	tb := newTestBot(t)
	tb.client.fileURL = serveFile(t, "video-bytes")
	ctx := context.Background()

	tb.HandleUpdate(ctx, tgbotapi.Update{Message: videoMessage(5, "Clip.MP4", 11)})

	assert.Equal(t, []string{textDownloading, textDownloaded, textChooseCount}, tb.client.texts())

	path, ok := tb.sessions.Take(5)
	require.True(t, ok)
	assert.Equal(t, ".MP4", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))

	files, _ := tb.users.Value(ctx, userstore.CounterFilesProcessed)
	assert.Equal(t, int64(1), files)
	known, _ := tb.users.Exists(ctx, 5)
	assert.True(t, known)

	last := tb.client.sent[len(tb.client.sent)-1].(tgbotapi.MessageConfig)
	assert.IsType(t, tgbotapi.InlineKeyboardMarkup{}, last.ReplyMarkup)
}

func TestHandleUpload_Document(t *testing.T) {
	tb := newTestBot(t)
	tb.client.fileURL = serveFile(t, "doc")

	msg := privateMessage(5, "")
	msg.Document = &tgbotapi.Document{FileID: "doc-1", FileName: "movie.mkv", FileSize: 3}
	tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	assert.Equal(t, 1, tb.sessions.Len())
}

func TestHandleUpload_ReplacesPreviousSession(t *testing.T) {
	tb := newTestBot(t)
	tb.client.fileURL = serveFile(t, "video")
	ctx := context.Background()

	tb.HandleUpdate(ctx, tgbotapi.Update{Message: videoMessage(5, "a.mp4", 5)})
	tb.HandleUpdate(ctx, tgbotapi.Update{Message: videoMessage(5, "b.mp4", 5)})

	assert.Equal(t, 1, tb.sessions.Len())
	entries, err := os.ReadDir(tb.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "superseded upload must be deleted")
}

func TestHandleUpload_TooLarge(t *testing.T) {
	t.Run("declared size", func(t *testing.T) {
		tb := newTestBot(t)
		tb.SetMaxUploadBytes(1024 * 1024)

		tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: videoMessage(5, "big.mp4", 2*1024*1024)})

		assert.Equal(t, []string{fmt.Sprintf(textTooLarge, 1)}, tb.client.texts())
		assert.Equal(t, 0, tb.sessions.Len())
	})

	t.Run("actual size", func(t *testing.T) {
		tb := newTestBot(t)
		tb.client.fileURL = serveFile(t, "0123456789")
		tb.SetMaxUploadBytes(4)

		tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: videoMessage(5, "lie.mp4", 1)})

		assert.Equal(t, 0, tb.sessions.Len())
		entries, err := os.ReadDir(tb.dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestHandleUpload_ZeroLimitAcceptsAnySize(t *testing.T) {
	tb := newTestBot(t)
	tb.client.fileURL = serveFile(t, "0123456789")
	tb.SetMaxUploadBytes(0)

	tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: videoMessage(5, "huge.mp4", 50*1024*1024)})

	assert.Equal(t, 1, tb.sessions.Len())
}

func TestHandleUpload_DownloadFails(t *testing.T) {
	tb := newTestBot(t)
	tb.client.fileURL = serveFile(t, "x")

	msg := videoMessage(5, "clip.mp4", 1)
	msg.Video.FileID = "missing"
	tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	assert.Equal(t, []string{textDownloading, textDownloadFailed}, tb.client.texts())
	assert.Equal(t, 0, tb.sessions.Len())
}

func TestHandleMessage_IgnoresGroupChats(t *testing.T) {
	tb := newTestBot(t)
	msg := commandMessage(5, "/start")
	msg.Chat.Type = "group"

	tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})
	assert.Empty(t, tb.client.texts())
}

func TestHandleCallback_NoSession(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: countCallback(5, "ss_3")})

	cbs := tb.client.callbacks()
	require.Len(t, cbs, 1)
	assert.Equal(t, textNoVideo, cbs[0].Text)
	assert.True(t, cbs[0].ShowAlert)
	tb.pipeline.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCallback_RunsPipeline(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	tb.sessions.Put(ctx, 5, "/tmp/video.mp4")

	want := screenshot.Request{UserID: 5, SourcePath: "/tmp/video.mp4", Count: 3}
	tb.pipeline.On("Run", mock.Anything, want, mock.AnythingOfType("*bot.chatDelivery")).
		Return(screenshot.Result{Outcome: screenshot.OutcomeDelivered}, nil).Once()

	tb.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: countCallback(5, "ss_3")})

	tb.pipeline.AssertExpectations(t)
	assert.Equal(t, []string{"🛠 Generating 3 screenshots..."}, tb.client.texts())
	assert.Equal(t, 0, tb.sessions.Len())

	cbs := tb.client.callbacks()
	require.Len(t, cbs, 1)
	assert.False(t, cbs[0].ShowAlert)
}

func TestHandleCallback_OnlyOneSelectionConsumesSession(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	tb.sessions.Put(ctx, 5, "/tmp/video.mp4")
	tb.pipeline.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Return(screenshot.Result{}, nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tb.HandleUpdate(ctx, tgbotapi.Update{CallbackQuery: countCallback(5, "ss_2")})
		}()
	}
	wg.Wait()

	tb.pipeline.AssertNumberOfCalls(t, "Run", 1)
	alerts := 0
	for _, cb := range tb.client.callbacks() {
		if cb.ShowAlert {
			alerts++
		}
	}
	assert.Equal(t, 4, alerts)
}

func TestHandleCallback_ForeignPayload(t *testing.T) {
	tb := newTestBot(t)
	tb.sessions.Put(context.Background(), 5, "/tmp/video.mp4")

	tb.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: countCallback(5, "settings")})
	tb.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: countCallback(5, "ss_25")})

	assert.Equal(t, 1, tb.sessions.Len(), "session must survive unrelated callbacks")
	for _, cb := range tb.client.callbacks() {
		assert.Empty(t, cb.Text)
	}
}

func TestHandleUpdate_RecoversFromPanic(t *testing.T) {
	tb := newTestBot(t)
	tb.sessions.Put(context.Background(), 5, "/tmp/video.mp4")
	tb.pipeline.On("Run", mock.Anything, mock.Anything, mock.Anything).Panic("boom")

	assert.NotPanics(t, func() {
		tb.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: countCallback(5, "ss_1")})
	})
}

func TestCommands_StartAndHelp(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	tb.HandleUpdate(ctx, tgbotapi.Update{Message: commandMessage(5, "/start")})
	tb.HandleUpdate(ctx, tgbotapi.Update{Message: commandMessage(5, "/help")})

	assert.Equal(t, []string{textStart, textHelp}, tb.client.texts())
	known, err := tb.users.Exists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, known)
	for _, c := range tb.client.sent {
		assert.Equal(t, tgbotapi.ModeMarkdown, c.(tgbotapi.MessageConfig).ParseMode)
	}
}

func TestCommands_Cancel(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	video := filepath.Join(tb.dir, "pending.mp4")
	require.NoError(t, os.WriteFile(video, []byte("v"), 0600))
	tb.sessions.Put(ctx, 5, video)

	tb.HandleUpdate(ctx, tgbotapi.Update{Message: commandMessage(5, "/cancel")})
	tb.HandleUpdate(ctx, tgbotapi.Update{Message: commandMessage(5, "/cancel")})

	assert.Equal(t, []string{textCancelled, textNoPending}, tb.client.texts())
	_, err := os.Stat(video)
	assert.True(t, os.IsNotExist(err), "cancelled upload must be deleted")
}

func TestCommands_Stats(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, tb.users.Upsert(ctx, userstore.User{ID: 1}))
	require.NoError(t, tb.users.Upsert(ctx, userstore.User{ID: 2}))
	_, _ = tb.users.Increment(ctx, userstore.CounterFilesProcessed)
	tb.sessions.Put(ctx, 1, "/tmp/x.mp4")

	tb.HandleUpdate(ctx, tgbotapi.Update{Message: commandMessage(7, "/stats")})
	tb.HandleUpdate(ctx, tgbotapi.Update{Message: commandMessage(adminID, "/stats")})

	assert.Equal(t, []string{textUnauthorized, fmt.Sprintf(textStats, 2, 1, 1)}, tb.client.texts())
}

func TestCommands_Broadcast(t *testing.T) {
	t.Run("non operator is rejected", func(t *testing.T) {
		tb := newTestBot(t)
		msg := commandMessage(7, "/broadcast")
		msg.ReplyToMessage = privateMessage(7, "hello")

		tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

		assert.Equal(t, []string{textUnauthorized}, tb.client.texts())
		tb.broadcaster.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("needs a reply", func(t *testing.T) {
		tb := newTestBot(t)
		tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage(adminID, "/broadcast")})

		assert.Equal(t, []string{textBroadcastUsage}, tb.client.texts())
		tb.broadcaster.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("relays the replied message", func(t *testing.T) {
		tb := newTestBot(t)
		msg := commandMessage(adminID, "/broadcast")
		msg.ReplyToMessage = &tgbotapi.Message{MessageID: 55}
		tb.broadcaster.On("Run", mock.Anything, broadcast.Message{FromChatID: adminID, MessageID: 55}).
			Return(broadcast.Report{Sent: 3, Failed: 1, Pruned: 1}, nil).Once()

		tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

		tb.broadcaster.AssertExpectations(t)
		assert.Equal(t, []string{textBroadcasting, fmt.Sprintf(textBroadcastDone, 3, 1, 0, 1)}, tb.client.texts())
	})

	t.Run("reports an interrupted run", func(t *testing.T) {
		tb := newTestBot(t)
		msg := commandMessage(adminID, "/broadcast")
		msg.ReplyToMessage = &tgbotapi.Message{MessageID: 55}
		tb.broadcaster.On("Run", mock.Anything, mock.Anything).
			Return(broadcast.Report{Sent: 1}, context.Canceled).Once()

		tb.HandleUpdate(context.Background(), tgbotapi.Update{Message: msg})

		texts := tb.client.texts()
		require.Len(t, texts, 2)
		assert.Equal(t, fmt.Sprintf(textBroadcastStop, context.Canceled, 1, 0, 0, 0), texts[1])
	})
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	tb := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tb.Run(ctx) }()

	tb.client.updates <- tgbotapi.Update{UpdateID: 1, Message: commandMessage(5, "/help")}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, []string{textHelp}, tb.client.texts())
	tb.client.mu.Lock()
	assert.True(t, tb.client.stopped)
	tb.client.mu.Unlock()
}

func TestBot_RunReturnsWhenUpdatesClose(t *testing.T) {
	tb := newTestBot(t)
	close(tb.client.updates)
	assert.NoError(t, tb.Run(context.Background()))
}
