package negotiate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/config"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/llm"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/market"
)

// fakeProvider replays scripted completions, or fails every call.
type fakeProvider struct {
	responses []*llm.Completion
	err       error
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (*llm.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llm.Completion{Content: "COUNTER"}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// chatPage serves a scripted chat transcript and records sent messages.
type chatPage struct {
	transcript []map[string]string
	evalErr    error
	filled     []string
	enters     int
}

func (p *chatPage) Navigate(ctx context.Context, url string) error { return nil }
func (p *chatPage) WaitStable(ctx context.Context) error           { return nil }
func (p *chatPage) Exists(ctx context.Context, sel string) bool {
	return sel == `textarea[placeholder="Type here..."]`
}
func (p *chatPage) Click(ctx context.Context, sel string) error { return nil }
func (p *chatPage) Fill(ctx context.Context, sel, text string) error {
	p.filled = append(p.filled, text)
	return nil
}
func (p *chatPage) PressEscape(ctx context.Context) error            { return nil }
func (p *chatPage) PressEnter(ctx context.Context) error             { p.enters++; return nil }
func (p *chatPage) Screenshot(ctx context.Context, path string) error { return nil }
func (p *chatPage) URL() string                                      { return "https://example.test/chat" }

func (p *chatPage) Evaluate(ctx context.Context, js string) (json.RawMessage, error) {
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	if strings.Contains(js, "chat-message") {
		data, _ := json.Marshal(p.transcript)
		return data, nil
	}
	// Overlay predicate and friends: nothing present.
	return json.RawMessage(`false`), nil
}

func testConfig() config.NegotiationConfig {
	return config.NegotiationConfig{
		MaxRounds:                 5,
		EscalationPercents:        []int{65, 85, 95, 100},
		PlaceholderPriceThreshold: 100,
		Persona:                   "chris_voss",
	}
}

func testEngine(t *testing.T, provider llm.Provider) (*Engine, *Store) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return NewEngine(provider, store, testConfig(), ""), store
}

func testListing() market.Listing {
	return market.Listing{
		Index:      0,
		Title:      "iPhone 14 Pro",
		Price:      800,
		SellerName: "alice",
		ListingURL: "https://example.test/p/iphone",
	}
}

func TestCalculateOffer(t *testing.T) {
	e, _ := testEngine(t, &fakeProvider{})
	e.jitter = func() float64 { return 0 }

	t.Run("schedule tiers", func(t *testing.T) {
		want := []float64{520, 680, 760, 800}
		for round := 1; round <= 4; round++ {
			if got := e.CalculateOffer(800, round); got != want[round-1] {
				t.Errorf("round %d: expected %v, got %v", round, want[round-1], got)
			}
		}
	})

	t.Run("clamped beyond schedule", func(t *testing.T) {
		if got := e.CalculateOffer(800, 5); got != 800 {
			t.Errorf("round 5 should clamp to final tier, got %v", got)
		}
		if got := e.CalculateOffer(800, 9); got != 800 {
			t.Errorf("round 9 should clamp to final tier, got %v", got)
		}
	})

	t.Run("monotonic within schedule under jitter", func(t *testing.T) {
		e.jitter = func() float64 { return 8 }
		low := make([]float64, 5)
		for r := 1; r <= 4; r++ {
			low[r] = e.CalculateOffer(800, r)
		}
		e.jitter = func() float64 { return -7 }
		for r := 1; r < 4; r++ {
			next := e.CalculateOffer(800, r+1)
			if low[r] > next {
				t.Errorf("offer(%d)=%v with max jitter exceeds offer(%d)=%v with min jitter", r, low[r], r+1, next)
			}
		}
	})

	t.Run("jitter stays in band", func(t *testing.T) {
		e2, _ := testEngine(t, &fakeProvider{})
		for i := 0; i < 50; i++ {
			got := e2.CalculateOffer(800, 1)
			if got < 513 || got > 528 {
				t.Fatalf("round 1 offer %v outside jitter band", got)
			}
		}
	})

	t.Run("never below one", func(t *testing.T) {
		e.jitter = func() float64 { return -7 }
		if got := e.CalculateOffer(5, 1); got < 1 {
			t.Errorf("offer %v dropped below 1", got)
		}
	})
}

func TestSyncConversationIdempotent(t *testing.T) {
	e, _ := testEngine(t, &fakeProvider{})
	page := &chatPage{transcript: []map[string]string{
		{"role": "buyer", "content": "Would you take $520?"},
		{"role": "seller", "content": "Lowest is $700"},
	}}

	rec := e.store.GetOrCreate(testListing())
	if err := e.SyncConversation(context.Background(), rec, page); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(rec.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(rec.Messages))
	}
	if rec.CurrentRound != 1 {
		t.Errorf("expected round 1 after sync, got %d", rec.CurrentRound)
	}
	if !rec.Messages[0].Synced {
		t.Error("scraped message should be marked synced")
	}

	// Second sync with the same transcript changes nothing.
	if err := e.SyncConversation(context.Background(), rec, page); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(rec.Messages) != 2 {
		t.Errorf("second sync duplicated messages: %d", len(rec.Messages))
	}
	if rec.CurrentRound != 1 {
		t.Errorf("second sync changed round to %d", rec.CurrentRound)
	}
}

func TestNegotiateFirstRound(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.Completion{
		{Content: `"Hi! Seen similar around $515, cash ready today?"`},
	}}
	e, store := testEngine(t, provider)
	page := &chatPage{}

	status, err := e.Negotiate(context.Background(), testListing(), page)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if !strings.Contains(status, "Sent round-1 message") {
		t.Errorf("unexpected status: %q", status)
	}
	if len(page.filled) != 1 || page.enters != 1 {
		t.Errorf("expected one delivered message, filled=%v enters=%d", page.filled, page.enters)
	}

	rec := store.Get(SellerID("alice", "iPhone 14 Pro"))
	if rec == nil {
		t.Fatal("record not created")
	}
	if rec.CurrentRound != 1 {
		t.Errorf("expected round 1, got %d", rec.CurrentRound)
	}
	if rec.Status != StatusActive {
		t.Errorf("expected active, got %s", rec.Status)
	}
	last := rec.Messages[len(rec.Messages)-1]
	if last.Role != RoleBuyer || !last.Sent {
		t.Errorf("unexpected last message: %+v", last)
	}
	if last.Content != `Hi! Seen similar around $515, cash ready today?` {
		t.Errorf("quotes not stripped: %q", last.Content)
	}
}

func TestNegotiateAcceptFlow(t *testing.T) {
	e, store := testEngine(t, &fakeProvider{})
	page := &chatPage{transcript: []map[string]string{
		{"role": "buyer", "content": "Would you take $520?"},
		{"role": "seller", "content": "ok deal, come collect"},
	}}

	listing := testListing()
	status, err := e.Negotiate(context.Background(), listing, page)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if !strings.Contains(status, "Deal accepted") {
		t.Errorf("unexpected status: %q", status)
	}
	if len(page.filled) != 1 || page.filled[0] != confirmationMessage {
		t.Errorf("expected confirmation sent, got %v", page.filled)
	}

	rec := store.Get(SellerID("alice", "iPhone 14 Pro"))
	if rec.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", rec.Status)
	}
	roundBefore := rec.CurrentRound
	msgsBefore := len(rec.Messages)

	// A second call is a no-op: same status, no new offer, no round bump.
	status2, err := e.Negotiate(context.Background(), listing, page)
	if err != nil {
		t.Fatalf("second negotiate: %v", err)
	}
	if !strings.Contains(status2, "already accepted") {
		t.Errorf("unexpected second status: %q", status2)
	}
	if rec.CurrentRound != roundBefore || len(rec.Messages) != msgsBefore {
		t.Error("accepted record mutated by second negotiate call")
	}
	if len(page.filled) != 1 {
		t.Errorf("second call sent another message: %v", page.filled)
	}
}

func TestNegotiateWalkAway(t *testing.T) {
	e, store := testEngine(t, &fakeProvider{})
	page := &chatPage{}

	listing := testListing()
	rec := store.GetOrCreate(listing)
	for r := 1; r <= 5; r++ {
		rec.AppendBuyer(fmt.Sprintf("offer %d", r), r, 500, true)
	}

	status, err := e.Negotiate(context.Background(), listing, page)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if !strings.Contains(status, "walking away") {
		t.Errorf("unexpected status: %q", status)
	}
	if rec.Status != StatusWalkedAway {
		t.Errorf("expected walked_away, got %s", rec.Status)
	}
	if len(rec.Messages) != 5 {
		t.Errorf("walk-away appended a message: %d", len(rec.Messages))
	}
	if len(page.filled) != 0 {
		t.Errorf("walk-away sent a message: %v", page.filled)
	}
}

func TestNegotiateProviderFailureFallsBack(t *testing.T) {
	e, store := testEngine(t, &fakeProvider{err: errors.New("provider down")})
	page := &chatPage{transcript: []map[string]string{
		{"role": "seller", "content": "still available"},
	}}

	status, err := e.Negotiate(context.Background(), testListing(), page)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if !strings.Contains(status, "Sent round-1 message") {
		t.Errorf("unexpected status: %q", status)
	}

	rec := store.Get(SellerID("alice", "iPhone 14 Pro"))
	last := rec.Messages[len(rec.Messages)-1]
	if last.Role != RoleBuyer || last.Content == "" {
		t.Fatalf("expected non-empty fallback message, got %+v", last)
	}
	if !strings.Contains(last.Content, "$") {
		t.Errorf("fallback not parameterized by offer: %q", last.Content)
	}
}

func TestNegotiateUndeliveredMessageStillLogged(t *testing.T) {
	provider := &fakeProvider{responses: []*llm.Completion{{Content: "my offer"}}}
	e, store := testEngine(t, provider)

	// Nil page: nothing can be delivered, the decision is still recorded.
	status, err := e.Negotiate(context.Background(), testListing(), nil)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if !strings.Contains(status, "chat input not found") {
		t.Errorf("unexpected status: %q", status)
	}

	rec := store.Get(SellerID("alice", "iPhone 14 Pro"))
	last := rec.Messages[len(rec.Messages)-1]
	if last.Sent {
		t.Error("message should be logged as unsent")
	}
	if rec.CurrentRound != 1 {
		t.Errorf("round should advance despite delivery failure, got %d", rec.CurrentRound)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		provider *fakeProvider
		want     string
	}{
		{
			name:     "keyword accept without provider",
			message:  "ok deal, come collect tonight",
			provider: &fakeProvider{err: errors.New("down")},
			want:     VerdictAccept,
		},
		{
			name:     "provider accept",
			message:  "sure can",
			provider: &fakeProvider{responses: []*llm.Completion{{Content: "ACCEPT"}}},
			want:     VerdictAccept,
		},
		{
			name:     "provider reject",
			message:  "firm price sorry",
			provider: &fakeProvider{responses: []*llm.Completion{{Content: "REJECT"}}},
			want:     VerdictReject,
		},
		{
			name:     "provider counter",
			message:  "can do $700",
			provider: &fakeProvider{responses: []*llm.Completion{{Content: "COUNTER"}}},
			want:     VerdictCounter,
		},
		{
			name:     "provider failure defaults to counter",
			message:  "hmm let me think",
			provider: &fakeProvider{err: errors.New("timeout")},
			want:     VerdictCounter,
		},
		{
			name:     "garbage output defaults to counter",
			message:  "maybe",
			provider: &fakeProvider{responses: []*llm.Completion{{Content: "the seller seems unsure"}}},
			want:     VerdictCounter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testEngine(t, tt.provider)
			got := e.Classify(context.Background(), tt.message, nil)
			if got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.message, got, tt.want)
			}
		})
	}
}

func TestRespondToCounter(t *testing.T) {
	t.Run("accepts at or under max tier", func(t *testing.T) {
		e, store := testEngine(t, &fakeProvider{})
		page := &chatPage{}

		status, err := e.RespondToCounter(context.Background(), testListing(), 750, page)
		if err != nil {
			t.Fatalf("respond: %v", err)
		}
		if !strings.Contains(status, "Accepted seller's price") {
			t.Errorf("unexpected status: %q", status)
		}
		rec := store.Get(SellerID("alice", "iPhone 14 Pro"))
		if rec.Status != StatusAccepted || rec.FinalPrice != 750 {
			t.Errorf("unexpected record: status=%s final=%v", rec.Status, rec.FinalPrice)
		}
	})

	t.Run("counters above max tier", func(t *testing.T) {
		provider := &fakeProvider{responses: []*llm.Completion{
			{Content: "COUNTER"},
			{Content: "best I can do is $520"},
		}}
		e, store := testEngine(t, provider)
		page := &chatPage{}

		status, err := e.RespondToCounter(context.Background(), testListing(), 900, page)
		if err != nil {
			t.Fatalf("respond: %v", err)
		}
		if !strings.Contains(status, "Sent round-1 message") {
			t.Errorf("unexpected status: %q", status)
		}
		rec := store.Get(SellerID("alice", "iPhone 14 Pro"))
		if rec.Status != StatusActive {
			t.Errorf("expected active, got %s", rec.Status)
		}
	})
}

func TestSummary(t *testing.T) {
	e, store := testEngine(t, &fakeProvider{})

	if got := e.Summary(""); got != "No chat history." {
		t.Errorf("unexpected empty summary: %q", got)
	}

	rec := store.GetOrCreate(testListing())
	rec.AppendBuyer("offer", 1, 520, true)

	got := e.Summary("")
	if !strings.Contains(got, "alice_iPhone 14 Pro") || !strings.Contains(got, "active (1 rounds)") {
		t.Errorf("unexpected summary: %q", got)
	}

	one := e.Summary(rec.SellerID)
	if !strings.Contains(one, `"seller_id"`) {
		t.Errorf("expected JSON detail, got %q", one)
	}

	if got := e.Summary("nobody_nothing"); !strings.Contains(got, "No chat history for") {
		t.Errorf("unexpected miss summary: %q", got)
	}
}
