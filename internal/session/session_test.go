// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/conversation"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/settings"
	"github.com/jeranaias/nova/internal/storage"
)

// fakeDispatcher returns a canned reply or error and records its input.
type fakeDispatcher struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	last    []model.OutboundMessage
	release chan struct{}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, _ model.AISettings, msgs []model.OutboundMessage) (string, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = msgs
	return f.reply, f.err
}

func newSession(t *testing.T, d Dispatcher) *Session {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	return New(conversation.Load(ctx, kv, nil), settings.Load(ctx, kv, nil), d)
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_CreatesChatAndRecordsReply(t *testing.T) {
	d := &fakeDispatcher{reply: "Hi there"}
	s := newSession(t, d)

	turn, err := s.Send(context.Background(), "", "hello world, this title is definitely long")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !turn.Created {
		t.Error("expected a chat to be created")
	}
	if turn.Assistant == nil || turn.Assistant.Content != "Hi there" {
		t.Fatalf("Assistant = %+v, want Hi there", turn.Assistant)
	}

	chat, err := s.Chats().Get(turn.ChatID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if chat.Title != "hello world, this title is def" {
		t.Errorf("Title = %q", chat.Title)
	}
	if len(chat.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(chat.Messages))
	}
	if chat.Messages[1].Role != model.RoleAssistant {
		t.Errorf("second message role = %s", chat.Messages[1].Role)
	}
	if s.Chats().ActiveID() != turn.ChatID {
		t.Error("created chat should be active")
	}
}

func TestSend_UsesActiveChat(t *testing.T) {
	s := newSession(t, &fakeDispatcher{reply: "r"})
	chat := s.Chats().Create("")

	turn, err := s.Send(context.Background(), "", "q")
	if err != nil {
		t.Fatal(err)
	}
	if turn.ChatID != chat.ID || turn.Created {
		t.Errorf("turn went to %s (created=%v), want active %s", turn.ChatID, turn.Created, chat.ID)
	}
	got, _ := s.Chats().Get(chat.ID)
	if got.Title != model.DefaultChatTitle {
		t.Errorf("explicit chat title changed to %q", got.Title)
	}
}

func TestSend_NamedChatBecomesActive(t *testing.T) {
	s := newSession(t, &fakeDispatcher{reply: "r"})
	first := s.Chats().Create("first")
	s.Chats().Create("second")

	if _, err := s.Send(context.Background(), first.ID, "q"); err != nil {
		t.Fatal(err)
	}
	if s.Chats().ActiveID() != first.ID {
		t.Errorf("ActiveID = %s, want %s", s.Chats().ActiveID(), first.ID)
	}
}

func TestSend_UnknownChat(t *testing.T) {
	s := newSession(t, &fakeDispatcher{})
	_, err := s.Send(context.Background(), "missing", "q")
	if !errors.Is(err, conversation.ErrChatNotFound) {
		t.Errorf("err = %v, want ErrChatNotFound", err)
	}
}

func TestSend_EmptyInput(t *testing.T) {
	d := &fakeDispatcher{}
	s := newSession(t, d)
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := s.Send(context.Background(), "", text); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Send(%q) err = %v, want ErrEmptyInput", text, err)
		}
	}
	if s.Chats().Len() != 0 || d.calls != 0 {
		t.Error("blank input must not create chats or dispatch")
	}
}

func TestSend_FailureKeepsUserMessage(t *testing.T) {
	provErr := &cloud.Error{Kind: cloud.KindProvider, Status: 500, Message: "rate limited"}
	s := newSession(t, &fakeDispatcher{err: provErr})

	turn, err := s.Send(context.Background(), "", "hello")
	if !errors.Is(err, cloud.ErrProvider) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if err.Error() != "rate limited" {
		t.Errorf("message = %q", err.Error())
	}
	if turn == nil || turn.Assistant != nil {
		t.Fatalf("turn = %+v, want user-only turn", turn)
	}

	chat, _ := s.Chats().Get(turn.ChatID)
	if len(chat.Messages) != 1 || chat.Messages[0].Role != model.RoleUser {
		t.Errorf("messages = %+v, want only the user message", chat.Messages)
	}
}

func TestSend_AppliesWindowAndPreamble(t *testing.T) {
	d := &fakeDispatcher{reply: "ok"}
	s := newSession(t, d)
	s.Settings().SetPreamble("Be brief. ")
	s.Settings().SetAI(model.AISettings{ContextLength: 3})

	for i := 0; i < 4; i++ {
		if _, err := s.Send(context.Background(), "", "q"); err != nil {
			t.Fatal(err)
		}
	}

	// 7 stored messages before the last dispatch; window of 3.
	if len(d.last) != 3 {
		t.Fatalf("sent %d messages, want 3", len(d.last))
	}
	lastUser := d.last[len(d.last)-1]
	if lastUser.Role != model.RoleUser || lastUser.Content != "Be brief. q" {
		t.Errorf("last outbound = %+v", lastUser)
	}

	chat, _ := s.Chats().Active()
	for _, m := range chat.Messages {
		if strings.HasPrefix(m.Content, "Be brief.") {
			t.Error("preamble leaked into stored content")
		}
	}
}

func TestSend_Busy(t *testing.T) {
	d := &fakeDispatcher{reply: "r", release: make(chan struct{})}
	s := newSession(t, d)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "", "first")
		done <- err
	}()

	// Wait until the first turn holds the busy flag.
	for !s.Busy() {
		runtime.Gosched()
	}

	if _, err := s.Send(context.Background(), "", "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send err = %v, want ErrBusy", err)
	}

	close(d.release)
	if err := <-done; err != nil {
		t.Fatalf("first Send error = %v", err)
	}
	if s.Busy() {
		t.Error("busy flag not cleared")
	}
}
