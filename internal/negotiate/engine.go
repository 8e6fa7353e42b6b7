package negotiate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/browser"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/config"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/llm"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/market"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/trace"
)

// Verdicts for seller reply classification.
const (
	VerdictAccept  = "ACCEPT"
	VerdictCounter = "COUNTER"
	VerdictReject  = "REJECT"
)

// jitterOffsets keep offers off round numbers. Anchoring tactic: a precise
// figure signals the buyer has done research.
var jitterOffsets = []float64{-3, -7, 2, 8, -2, 3}

// chatInputStrategies locate the chat composer across markup variants.
var chatInputStrategies = []browser.Strategy{
	{Name: "exact placeholder", Selector: `textarea[placeholder="Type here..."]`},
	{Name: "type placeholder", Selector: `textarea[placeholder*="Type"]`},
	{Name: "message placeholder", Selector: `textarea[placeholder*="message"]`},
	{Name: "contenteditable", Selector: `[contenteditable="true"]`},
	{Name: "any textarea", Selector: `textarea`},
}

// acceptKeywords short-circuit classification deterministically before the
// provider is consulted, so a provider outage cannot miss an obvious close.
var acceptKeywords = []string{"ok deal", "it's a deal", "ok can", "come collect", "accept your offer", "sold to you"}

// Engine owns conversation records and runs the negotiation rounds.
type Engine struct {
	provider llm.Provider
	store    *Store
	cfg      config.NegotiationConfig
	shotDir  string

	rng    *rand.Rand
	jitter func() float64
	flight *trace.Recorder
}

// NewEngine builds an engine over the given provider and store. shotDir
// receives diagnostic screenshots when message delivery fails.
func NewEngine(provider llm.Provider, store *Store, cfg config.NegotiationConfig, shotDir string) *Engine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Engine{
		provider: provider,
		store:    store,
		cfg:      cfg,
		shotDir:  shotDir,
		rng:      rng,
		jitter:   func() float64 { return jitterOffsets[rng.Intn(len(jitterOffsets))] },
	}
}

// SetFlightRecorder attaches a trace recorder. Passing nil disables tracing.
func (e *Engine) SetFlightRecorder(r *trace.Recorder) {
	e.flight = r
}

func (e *Engine) traceEvent(eventType, sellerID string, data any) {
	if e.flight != nil {
		e.flight.Log(eventType, sellerID, data)
	}
}

// CalculateOffer applies the escalation schedule for a round, clamped at the
// final tier, then jitters the result. The offer never drops below 1.
func (e *Engine) CalculateOffer(listingPrice float64, round int) float64 {
	percents := e.cfg.EscalationPercents
	idx := round - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(percents) {
		idx = len(percents) - 1
	}
	base := listingPrice * float64(percents[idx]) / 100
	offer := float64(int(base)) + e.jitter()
	if offer < 1 {
		offer = 1
	}
	return offer
}

// maxAcceptable is the highest seller price the engine will close on: the
// final-tier percentage of the listed price.
func (e *Engine) maxAcceptable(listingPrice float64) float64 {
	percents := e.cfg.EscalationPercents
	return listingPrice * float64(percents[len(percents)-1]) / 100
}

// Negotiate starts or continues the negotiation for a listing. It returns a
// human-readable status line; errors are reserved for state-store failures,
// everything page- or provider-side degrades to a status.
func (e *Engine) Negotiate(ctx context.Context, listing market.Listing, page browser.Page) (string, error) {
	rec := e.store.GetOrCreate(listing)
	log.Printf("Negotiating '%s' @ $%.0f (seller %s, round %d, status %s)",
		listing.Title, listing.Price, rec.SellerID, rec.CurrentRound, rec.Status)

	switch rec.Status {
	case StatusAccepted:
		return fmt.Sprintf("Deal for %s already accepted at $%.0f, nothing to do.", listing.Title, rec.FinalPrice), nil
	case StatusWalkedAway:
		return fmt.Sprintf("Already walked away from %s after %d rounds.", listing.Title, rec.CurrentRound), nil
	}

	if err := e.SyncConversation(ctx, rec, page); err != nil {
		log.Printf("Transcript sync failed, continuing with local state: %v", err)
	}

	if last := rec.LastSellerMessage(); last != nil {
		verdict := e.Classify(ctx, last.Content, rec.Messages)
		e.traceEvent("verdict", rec.SellerID, map[string]string{"verdict": verdict, "seller_message": last.Content})
		if verdict == VerdictAccept {
			rec.Status = StatusAccepted
			if rec.FinalPrice == 0 {
				rec.FinalPrice = lastOffer(rec)
			}
			e.traceEvent("accepted", rec.SellerID, map[string]float64{"final_price": rec.FinalPrice})
			sent := e.sendMessage(ctx, page, confirmationMessage)
			if err := e.store.Save(); err != nil {
				return "", err
			}
			if sent {
				return fmt.Sprintf("Deal accepted for %s! Confirmation sent.", listing.Title), nil
			}
			return fmt.Sprintf("Deal accepted for %s! Confirmation generated but not delivered.", listing.Title), nil
		}
		if verdict == VerdictReject {
			log.Printf("Seller rejected, continuing negotiation")
		}
	}

	if rec.CurrentRound+1 > e.cfg.MaxRounds {
		rec.Status = StatusWalkedAway
		e.traceEvent("walk_away", rec.SellerID, map[string]int{"rounds": rec.CurrentRound})
		if err := e.store.Save(); err != nil {
			return "", err
		}
		return fmt.Sprintf("Round budget exhausted for %s after %d rounds, walking away.", listing.Title, rec.CurrentRound), nil
	}

	round := rec.CurrentRound + 1
	var offer float64
	if listing.Price > e.cfg.PlaceholderPriceThreshold {
		offer = e.CalculateOffer(listing.Price, round)
		log.Printf("Round %d offer: $%.0f (%.0f%% of $%.0f)", round, offer, offer/listing.Price*100, listing.Price)
	} else {
		// Placeholder price: the provider reasons about the number instead.
		log.Printf("Round %d: no reliable price, deferring offer to the model", round)
	}

	message := e.generateMessage(ctx, listing, offer, round, rec)
	sent := e.sendMessage(ctx, page, message)

	rec.AppendBuyer(message, round, offer, sent)
	e.traceEvent("offer", rec.SellerID, map[string]any{"round": round, "amount": offer, "delivered": sent})
	if err := e.store.Save(); err != nil {
		return "", err
	}

	if sent {
		return fmt.Sprintf("Sent round-%d message for %s.", round, listing.Title), nil
	}
	return fmt.Sprintf("Generated round-%d message for %s (chat input not found).", round, listing.Title), nil
}

// scrapeChatJS pulls the visible chat transcript as {role, content} pairs.
// Role detection leans on the message-alignment markers the chat UI uses.
const scrapeChatJS = `() => {
	const msgs = [];
	const elements = document.querySelectorAll('div[id^="chat-message-"], [data-testid^="chat-message"], .D_cbh');
	elements.forEach(el => {
		const isMe = el.querySelector('.D_cbq, [data-testid="message-outgoing"]') !== null
			|| el.className.includes('outgoing');
		const textEl = el.querySelector('p.D_cBA, [data-testid="message-text"], p');
		if (!textEl) return;
		const text = textEl.innerText.trim();
		if (!text) return;
		msgs.push({ role: isMe ? 'buyer' : 'seller', content: text });
	});
	return msgs;
}`

// SyncConversation reconciles the record against the live chat: scraped turns
// missing locally (by exact role+content) are appended as synced messages,
// then the round counter is re-derived from the buyer message count. The
// operation is idempotent.
func (e *Engine) SyncConversation(ctx context.Context, rec *Record, page browser.Page) error {
	if page == nil {
		return nil
	}
	raw, err := page.Evaluate(ctx, scrapeChatJS)
	if err != nil {
		return fmt.Errorf("scrape chat: %w", err)
	}

	var scraped []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &scraped); err != nil {
		return fmt.Errorf("decode chat: %w", err)
	}

	changed := false
	for _, m := range scraped {
		if m.Content == "" || rec.Contains(m.Role, m.Content) {
			continue
		}
		log.Printf("Synced new %s message: %.30s", m.Role, m.Content)
		rec.Messages = append(rec.Messages, Message{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: time.Now(),
			Synced:    true,
		})
		changed = true
	}

	if n := rec.BuyerMessageCount(); n != rec.CurrentRound {
		rec.CurrentRound = n
		changed = true
	}
	if changed {
		return e.store.Save()
	}
	return nil
}

// Classify maps the seller's last message to ACCEPT, COUNTER, or REJECT.
// Obvious closes are caught by keyword first; the provider handles the rest,
// defaulting to COUNTER on any failure.
func (e *Engine) Classify(ctx context.Context, sellerMessage string, history []Message) string {
	lower := strings.ToLower(sellerMessage)
	for _, kw := range acceptKeywords {
		if strings.Contains(lower, kw) {
			return VerdictAccept
		}
	}

	start := len(history) - 8
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, m := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	messages := []llm.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: fmt.Sprintf("CHAT HISTORY:\n%s\nSELLER'S LAST MESSAGE: %q\n\nClassify this response:", b.String(), sellerMessage)},
	}

	resp, err := e.provider.Complete(ctx, messages, nil)
	if err != nil {
		log.Printf("Classification failed (%v), assuming COUNTER", err)
		return VerdictCounter
	}
	result := strings.ToUpper(strings.TrimSpace(resp.Content))
	switch {
	case strings.Contains(result, VerdictAccept):
		return VerdictAccept
	case strings.Contains(result, VerdictReject):
		return VerdictReject
	default:
		return VerdictCounter
	}
}

// generateMessage asks the provider for one short negotiation message and
// falls back to a round-specific template on any failure.
func (e *Engine) generateMessage(ctx context.Context, listing market.Listing, offer float64, round int, rec *Record) string {
	start := len(rec.Messages) - 10
	if start < 0 {
		start = 0
	}
	var history strings.Builder
	for _, m := range rec.Messages[start:] {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}

	offerLine := "decide a sensible offer from the conversation"
	if offer > 0 {
		offerLine = fmt.Sprintf("S$%.0f", offer)
	}
	desc := listing.Desc
	if desc == "" {
		desc = "N/A"
	}

	messages := []llm.Message{
		{Role: "system", Content: personaPrompt(e.cfg.Persona)},
		{Role: "user", Content: fmt.Sprintf(`Generate a negotiation message for Carousell:

Item: %s
Listed Price: S$%.0f
Your Offer: %s
Round: %d
Description: %s

CHAT HISTORY:
%s
TACTICAL GUIDANCE:
%s

Write ONLY the message itself, nothing else. Keep it to 1-2 sentences max.`,
			listing.Title, listing.Price, offerLine, round, desc, history.String(), roundContext(round))},
	}

	resp, err := e.provider.Complete(ctx, messages, nil)
	if err == nil {
		msg := strings.Trim(strings.TrimSpace(resp.Content), `"'`)
		if msg != "" {
			return msg
		}
	} else {
		log.Printf("Generation failed, using fallback: %v", err)
	}

	pool := fallbackMessages(listing.Title, offer, round)
	return pool[e.rng.Intn(len(pool))]
}

// sendMessage locates the chat composer and submits the message. Delivery
// failure is reported, not fatal; a diagnostic screenshot is captured.
func (e *Engine) sendMessage(ctx context.Context, page browser.Page, message string) bool {
	if page == nil {
		return false
	}
	browser.DismissOverlay(ctx, page)

	shot := ""
	if e.shotDir != "" {
		shot = filepath.Join(e.shotDir, "chat_input_not_found.png")
	}
	if err := browser.FillFirst(ctx, page, chatInputStrategies, message, shot); err != nil {
		log.Printf("Chat input not found: %v", err)
		return false
	}
	if err := page.PressEnter(ctx); err != nil {
		log.Printf("Submit failed: %v", err)
		return false
	}
	return true
}

// RespondToCounter handles a seller naming a price: close when it is at or
// under the final escalation tier, otherwise continue the normal rounds.
func (e *Engine) RespondToCounter(ctx context.Context, listing market.Listing, sellerPrice float64, page browser.Page) (string, error) {
	rec := e.store.GetOrCreate(listing)
	rec.AppendSeller(fmt.Sprintf("Counter-offered at $%.0f", sellerPrice), false)

	if sellerPrice <= e.maxAcceptable(listing.Price) {
		message := fmt.Sprintf("Deal! $%.0f works for me. When can I collect?", sellerPrice)
		e.sendMessage(ctx, page, message)
		rec.Status = StatusAccepted
		rec.FinalPrice = sellerPrice
		if err := e.store.Save(); err != nil {
			return "", err
		}
		return fmt.Sprintf("Accepted seller's price of $%.0f for %s.", sellerPrice, listing.Title), nil
	}

	if err := e.store.Save(); err != nil {
		return "", err
	}
	return e.Negotiate(ctx, listing, page)
}

// lastOffer returns the most recent buyer offer amount, or 0.
func lastOffer(rec *Record) float64 {
	for i := len(rec.Messages) - 1; i >= 0; i-- {
		if rec.Messages[i].Role == RoleBuyer && rec.Messages[i].Offer > 0 {
			return rec.Messages[i].Offer
		}
	}
	return 0
}

// Summary renders one conversation as JSON, or a one-line-per-seller digest
// of every conversation when sellerID is empty.
func (e *Engine) Summary(sellerID string) string {
	if sellerID != "" {
		rec := e.store.Get(sellerID)
		if rec == nil {
			return fmt.Sprintf("No chat history for %s", sellerID)
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Sprintf("History for %s unavailable: %v", sellerID, err)
		}
		return string(data)
	}

	records := e.store.All()
	if len(records) == 0 {
		return "No chat history."
	}
	var b strings.Builder
	b.WriteString("Chat History:\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "  %s: %s (%d rounds)\n", rec.SellerID, rec.Status, rec.CurrentRound)
	}
	return strings.TrimRight(b.String(), "\n")
}
