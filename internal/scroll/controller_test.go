package scroll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chet-im/chet/internal/cache"
	"github.com/chet-im/chet/internal/model"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   [][]model.Message
	fetches []int64
	reads   chan int64
	err     error
}

func (f *fakeFetcher) FetchOlder(_ context.Context, _ string, beforeTS int64) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, beforeTS)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeFetcher) MarkRead(_ context.Context, _ string, ts int64) error {
	if f.reads != nil {
		f.reads <- ts
	}
	return nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

func msg(id string, ts int64) model.Message {
	creator := "u1"
	return model.Message{ID: id, ChatID: "general", Creator: &creator, Content: id, CreatedTS: ts}
}

func seededCache() *cache.Cache {
	c := cache.New(nil)
	c.ReplaceChats([]model.Chat{{
		ID:            "general",
		Name:          "General",
		Messages:      []model.Message{msg("m1", 100), msg("m2", 200), msg("m3", 300)},
		LastMessageTS: 300,
	}})
	return c
}

// middle is a viewport reading away from both edges.
var middle = Viewport{ScrollTop: 500, ScrollHeight: 2000, ClientHeight: 400}

func TestGoDownAfterChatSwitch(t *testing.T) {
	ctl := New(&fakeFetcher{}, seededCache(), nil)
	ctl.SetChat("general")

	plan := ctl.Evaluate(context.Background(), middle)
	if plan.Kind != PlanScrollToBottom {
		t.Fatalf("plan = %v, want ScrollToBottom after chat switch", plan.Kind)
	}

	// Back in CheckNeed: a mid-viewport reading does nothing.
	plan = ctl.Evaluate(context.Background(), middle)
	if plan.Kind != PlanNone {
		t.Errorf("plan = %v, want None", plan.Kind)
	}
}

func TestNoFetchAwayFromTop(t *testing.T) {
	f := &fakeFetcher{}
	ctl := New(f, seededCache(), nil)
	ctl.SetChat("general")
	ctl.Evaluate(context.Background(), middle) // consume GoDown

	ctl.Evaluate(context.Background(), middle)
	if f.fetchCount() != 0 {
		t.Errorf("fetches = %d, want 0 away from the top", f.fetchCount())
	}
}

func TestFetchPrependAndRestoreOffset(t *testing.T) {
	f := &fakeFetcher{pages: [][]model.Message{{msg("m-1", 50), msg("m0", 80)}}}
	store := seededCache()
	ctl := New(f, store, nil)
	ctl.SetChat("general")
	ctl.Evaluate(context.Background(), middle) // consume GoDown

	// Near the top with content height 1000: triggers the fetch.
	top := Viewport{ScrollTop: 10, ScrollHeight: 1000, ClientHeight: 400}
	plan := ctl.Evaluate(context.Background(), top)
	if plan.Kind != PlanNone {
		t.Fatalf("plan = %v, want None while the redraw is pending", plan.Kind)
	}

	if got := f.fetches; len(got) != 1 || got[0] != 100 {
		t.Fatalf("fetches = %v, want one fetch older than ts 100", got)
	}

	chat, _ := store.Chat("general")
	wantTS := []int64{50, 80, 100, 200, 300}
	if len(chat.Messages) != len(wantTS) {
		t.Fatalf("window size = %d, want %d", len(chat.Messages), len(wantTS))
	}
	for i, ts := range wantTS {
		if chat.Messages[i].CreatedTS != ts {
			t.Errorf("messages[%d].ts = %d, want %d", i, chat.Messages[i].CreatedTS, ts)
		}
	}
	if chat.LastMessageTS != 300 {
		t.Errorf("last_message_ts = %d, want 300", chat.LastMessageTS)
	}

	// The page grew the content to 1600; the next evaluation restores
	// the visual position by the height delta.
	plan = ctl.Evaluate(context.Background(), Viewport{ScrollTop: 10, ScrollHeight: 1600, ClientHeight: 400})
	if plan.Kind != PlanScrollBy {
		t.Fatalf("plan = %v, want ScrollBy", plan.Kind)
	}
	if plan.Delta != 600 {
		t.Errorf("delta = %v, want 600", plan.Delta)
	}
}

func TestEmptyPageMarksExhausted(t *testing.T) {
	f := &fakeFetcher{} // always returns empty pages
	ctl := New(f, seededCache(), nil)
	ctl.SetChat("general")
	ctl.Evaluate(context.Background(), middle) // consume GoDown

	top := Viewport{ScrollTop: 0, ScrollHeight: 1000, ClientHeight: 400}
	ctl.Evaluate(context.Background(), top)
	ctl.Evaluate(context.Background(), top)
	ctl.Evaluate(context.Background(), top)

	if f.fetchCount() != 1 {
		t.Errorf("fetches = %d, want 1 (exhausted history must not refetch)", f.fetchCount())
	}

	// A bootstrap refresh resets the window, so exhaustion is forgotten.
	ctl.Reset()
	ctl.SetChat("general")
	ctl.Evaluate(context.Background(), middle)
	ctl.Evaluate(context.Background(), top)
	if f.fetchCount() != 2 {
		t.Errorf("fetches = %d, want 2 after reset", f.fetchCount())
	}
}

func TestFetchErrorLeavesStateRetryable(t *testing.T) {
	f := &fakeFetcher{err: errors.New("not connected")}
	ctl := New(f, seededCache(), nil)
	ctl.SetChat("general")
	ctl.Evaluate(context.Background(), middle)

	top := Viewport{ScrollTop: 0, ScrollHeight: 1000, ClientHeight: 400}
	ctl.Evaluate(context.Background(), top)
	ctl.Evaluate(context.Background(), top)

	// Errors neither exhaust the chat nor wedge the state machine.
	if f.fetchCount() != 2 {
		t.Errorf("fetches = %d, want 2 (errors are retryable)", f.fetchCount())
	}
}

func TestNearBottomMarksRead(t *testing.T) {
	f := &fakeFetcher{reads: make(chan int64, 1)}
	ctl := New(f, seededCache(), nil)
	ctl.SetChat("general")
	ctl.Evaluate(context.Background(), middle)

	// Short content: near top and bottom at once. Mark-read still fires.
	short := Viewport{ScrollTop: 0, ScrollHeight: 300, ClientHeight: 400}
	ctl.Evaluate(context.Background(), short)

	select {
	case ts := <-f.reads:
		if ts != 300 {
			t.Errorf("read receipt ts = %d, want 300", ts)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for mark read")
	}
}

func TestEmptyWindowUsesLastMessageTS(t *testing.T) {
	f := &fakeFetcher{pages: [][]model.Message{{msg("m1", 250)}}}
	store := cache.New(nil)
	store.ReplaceChats([]model.Chat{{ID: "general", LastMessageTS: 300}})

	ctl := New(f, store, nil)
	ctl.SetChat("general")
	ctl.Evaluate(context.Background(), middle)

	ctl.Evaluate(context.Background(), Viewport{ScrollTop: 0, ScrollHeight: 100, ClientHeight: 400})
	if len(f.fetches) != 1 || f.fetches[0] != 300 {
		t.Errorf("fetches = %v, want one fetch with the chat's last_message_ts", f.fetches)
	}
}
