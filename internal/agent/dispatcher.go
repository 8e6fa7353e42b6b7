package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/browser"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/llm"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/market"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/negotiate"
)

// maxHistoryTurns bounds the conversation window sent to the provider.
const maxHistoryTurns = 10

const systemPrompt = `You are Cheapskate, an AI assistant that helps users find and negotiate deals on Carousell Singapore.

You have access to tools for searching, opening listings, opening chats, starting lowball negotiations, checking the inbox, taking screenshots, and sending voice messages.

When the user asks to find items, use search first, then extract_listings to show results.
When they want to negotiate, use delegate_lowball to start the lowball negotiation.

Be helpful, proactive, and explain what you're doing.`

// Dispatcher owns the current listing cache and the bounded conversation
// history, and delegates all negotiation mutation to the engine.
type Dispatcher struct {
	provider llm.Provider
	registry *Registry
	engine   *negotiate.Engine
	store    *negotiate.Store
	page     browser.Page
	voice    Recorder

	baseURL string
	shotDir string

	history  []llm.Message
	listings []market.Listing
}

// NewDispatcher wires the action catalog over the given collaborators. voice
// may be nil.
func NewDispatcher(provider llm.Provider, engine *negotiate.Engine, store *negotiate.Store, page browser.Page, voice Recorder, baseURL, shotDir string) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		registry: NewRegistry(),
		engine:   engine,
		store:    store,
		page:     page,
		voice:    voice,
		baseURL:  strings.TrimRight(baseURL, "/"),
		shotDir:  shotDir,
	}
	d.registerActions()
	return d
}

// Registry exposes the action catalog, e.g. for the MCP surface.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Listings returns the current listing cache.
func (d *Dispatcher) Listings() []market.Listing {
	return d.listings
}

// Run handles one user utterance: the provider picks zero or more actions,
// which execute sequentially; their outcome lines become the reply. Free-text
// replies pass straight through.
func (d *Dispatcher) Run(ctx context.Context, utterance string) (string, error) {
	turnID := uuid.New().String()[:8]
	log.Printf("[turn %s] %s", turnID, utterance)

	d.appendHistory(llm.Message{Role: "user", Content: utterance})

	messages := append([]llm.Message{{Role: "system", Content: systemPrompt}}, d.history...)
	resp, err := d.provider.Complete(ctx, messages, d.registry.ToolSpecs())
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}

	if len(resp.ToolCalls) == 0 {
		content := resp.Content
		if content == "" {
			content = "I'm not sure how to help with that."
		}
		d.appendHistory(llm.Message{Role: "assistant", Content: content})
		return content, nil
	}

	lines := make([]string, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		action, ok := d.registry.Get(call.Name)
		if !ok {
			lines = append(lines, fmt.Sprintf("✗ Unknown action: %s", call.Name))
			continue
		}
		log.Printf("[turn %s] executing %s %v", turnID, call.Name, call.Arguments)
		result, err := action.Handler(ctx, call.Arguments)
		if err != nil {
			lines = append(lines, fmt.Sprintf("✗ %s: %v", call.Name, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("✓ %s: %s", call.Name, result))
	}

	combined := strings.Join(lines, "\n")
	d.appendHistory(llm.Message{Role: "assistant", Content: combined})
	return combined, nil
}

func (d *Dispatcher) appendHistory(m llm.Message) {
	d.history = append(d.history, m)
	if len(d.history) > maxHistoryTurns {
		d.history = d.history[len(d.history)-maxHistoryTurns:]
	}
}

// validIndex checks a listing index against the current cache, returning the
// recoverable error the catalog contract requires.
func (d *Dispatcher) validIndex(idx int) error {
	if len(d.listings) == 0 {
		return fmt.Errorf("no listings available, run a search first")
	}
	if idx < 0 || idx >= len(d.listings) {
		return fmt.Errorf("invalid listing index %d: valid range is 0-%d", idx, len(d.listings)-1)
	}
	return nil
}

func (d *Dispatcher) registerActions() {
	d.registry.Register(&Action{
		Name:        "search",
		Description: "Search the marketplace for items, optionally filtering by a maximum price.",
		Parameters: objectSchema([]string{"query"}, map[string]any{
			"query":     map[string]any{"type": "string", "description": "Search keywords"},
			"max_price": map[string]any{"type": "number", "description": "Maximum price filter"},
		}),
		Handler: d.handleSearch,
	})
	d.registry.Register(&Action{
		Name:        "extract_listings",
		Description: "Show the current listings, re-extracting from the page if the cache is empty.",
		Handler:     d.handleExtractListings,
	})
	d.registry.Register(&Action{
		Name:        "open_listing",
		Description: "Open a listing's detail page by index and load its description.",
		Parameters: objectSchema([]string{"listing_index"}, map[string]any{
			"listing_index": map[string]any{"type": "integer", "description": "Index from the current listings"},
		}),
		Handler: d.handleOpenListing,
	})
	d.registry.Register(&Action{
		Name:        "open_chat",
		Description: "Open the seller chat for a listing by index.",
		Parameters: objectSchema([]string{"listing_index"}, map[string]any{
			"listing_index": map[string]any{"type": "integer", "description": "Index from the current listings"},
		}),
		Handler: d.handleOpenChat,
	})
	d.registry.Register(&Action{
		Name:        "delegate_lowball",
		Description: "Run a lowball negotiation round for a listing by index.",
		Parameters: objectSchema([]string{"listing_index"}, map[string]any{
			"listing_index": map[string]any{"type": "integer", "description": "Index from the current listings"},
		}),
		Handler: d.handleDelegateLowball,
	})
	d.registry.Register(&Action{
		Name:        "check_chat",
		Description: "Visit the inbox and continue negotiations in unread threads.",
		Handler:     d.handleCheckChat,
	})
	d.registry.Register(&Action{
		Name:        "take_screenshot",
		Description: "Capture the current page to a file.",
		Parameters: objectSchema(nil, map[string]any{
			"filename": map[string]any{"type": "string", "description": "Target file name"},
		}),
		Handler: d.handleScreenshot,
	})
	d.registry.Register(&Action{
		Name:        "send_voice_message",
		Description: "Record a voice message, transcribe it, and send it in the open chat.",
		Parameters: objectSchema(nil, map[string]any{
			"duration": map[string]any{"type": "integer", "description": "Recording length in seconds"},
		}),
		Handler: d.handleVoiceMessage,
	})
}

func (d *Dispatcher) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	query := getStringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	maxPrice, _ := getFloatArg(args, "max_price")

	searchURL := fmt.Sprintf("%s/search/%s", d.baseURL, url.PathEscape(query))
	if err := d.page.Navigate(ctx, searchURL); err != nil {
		return "", err
	}
	_ = d.page.WaitStable(ctx)
	browser.DismissOverlay(ctx, d.page)

	listings, err := market.Extract(ctx, d.page, d.baseURL, maxPrice)
	if err != nil {
		return "", err
	}
	d.listings = listings
	return market.Format(listings), nil
}

func (d *Dispatcher) handleExtractListings(ctx context.Context, args map[string]any) (string, error) {
	if len(d.listings) > 0 {
		return market.Format(d.listings), nil
	}
	listings, err := market.Extract(ctx, d.page, d.baseURL, 0)
	if err != nil {
		return "", err
	}
	d.listings = listings
	return market.Format(listings), nil
}

func (d *Dispatcher) handleOpenListing(ctx context.Context, args map[string]any) (string, error) {
	idx, ok := getIntArg(args, "listing_index")
	if !ok {
		return "", fmt.Errorf("listing_index is required")
	}
	if err := d.validIndex(idx); err != nil {
		return "", err
	}

	listing := &d.listings[idx]
	if err := d.page.Navigate(ctx, listing.ListingURL); err != nil {
		return "", err
	}
	_ = d.page.WaitStable(ctx)
	browser.DismissOverlay(ctx, d.page)

	if err := market.ExtractDetails(ctx, d.page, listing); err != nil {
		log.Printf("Detail extraction failed: %v", err)
	}
	out := fmt.Sprintf("Opened '%s' (S$%.0f, %s)", listing.Title, listing.Price, listing.SellerName)
	if listing.Desc != "" {
		desc := listing.Desc
		if len(desc) > 200 {
			desc = desc[:200] + "..."
		}
		out += "\nDescription: " + desc
	}
	return out, nil
}

// chatEntryStrategies find the chat entry point on a listing page.
var chatEntryStrategies = []browser.Strategy{
	{Name: "chat testid", Selector: `[data-testid="chat-button"]`},
	{Name: "chat aria", Selector: `[aria-label*="Chat"]`},
	{Name: "chat link", Selector: `a[href*="/chat"]`},
	{Name: "chat class", Selector: `button[class*="chat"]`},
}

func (d *Dispatcher) handleOpenChat(ctx context.Context, args map[string]any) (string, error) {
	idx, ok := getIntArg(args, "listing_index")
	if !ok {
		return "", fmt.Errorf("listing_index is required")
	}
	if err := d.validIndex(idx); err != nil {
		return "", err
	}

	listing := d.listings[idx]
	if err := d.page.Navigate(ctx, listing.ListingURL); err != nil {
		return "", err
	}
	_ = d.page.WaitStable(ctx)
	browser.DismissOverlay(ctx, d.page)

	shot := filepath.Join(d.shotDir, "chat_entry_not_found.png")
	if err := browser.ClickFirst(ctx, d.page, chatEntryStrategies, shot); err != nil {
		return "", fmt.Errorf("chat entry point not found for '%s': %w", listing.Title, err)
	}
	_ = d.page.WaitStable(ctx)
	return fmt.Sprintf("Opened chat with %s about '%s'", listing.SellerName, listing.Title), nil
}

func (d *Dispatcher) handleDelegateLowball(ctx context.Context, args map[string]any) (string, error) {
	idx, ok := getIntArg(args, "listing_index")
	if !ok {
		return "", fmt.Errorf("listing_index is required")
	}
	if err := d.validIndex(idx); err != nil {
		return "", err
	}

	// Best effort: land in the chat before negotiating. The engine copes if
	// the click failed, it just cannot deliver.
	if _, err := d.handleOpenChat(ctx, args); err != nil {
		log.Printf("Open chat before negotiation failed: %v", err)
	}

	return d.engine.Negotiate(ctx, d.listings[idx], d.page)
}

// inboxThreadsJS lists unread inbox threads with their seller and item names.
const inboxThreadsJS = `() => {
	const threads = [];
	const rows = document.querySelectorAll('[data-testid*="inbox-item"], [class*="inbox"] a, a[href*="/chat/"]');
	for (const row of rows) {
		const unread = row.querySelector('[class*="unread"], [class*="badge"]') !== null;
		if (!unread) continue;
		const seller = (row.querySelector('[class*="user"], [class*="name"]') || {}).innerText || '';
		const title = (row.querySelector('[class*="title"], [class*="product"]') || {}).innerText || '';
		const href = row.getAttribute('href') || '';
		threads.push({ seller: seller.trim(), title: title.trim(), url: href });
		if (threads.length >= 10) break;
	}
	return threads;
}`

func (d *Dispatcher) handleCheckChat(ctx context.Context, args map[string]any) (string, error) {
	if err := d.page.Navigate(ctx, d.baseURL+"/inbox"); err != nil {
		return "", err
	}
	_ = d.page.WaitStable(ctx)
	browser.DismissOverlay(ctx, d.page)

	raw, err := d.page.Evaluate(ctx, inboxThreadsJS)
	if err != nil {
		return "", fmt.Errorf("scan inbox: %w", err)
	}
	var threads []struct {
		Seller string `json:"seller"`
		Title  string `json:"title"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(raw, &threads); err != nil {
		return "", fmt.Errorf("decode inbox: %w", err)
	}
	if len(threads) == 0 {
		return "Inbox checked: no unread threads.", nil
	}

	var lines []string
	for _, th := range threads {
		rec := d.store.Get(negotiate.SellerID(th.Seller, th.Title))
		if rec == nil {
			lines = append(lines, fmt.Sprintf("Unread thread from %s about '%s' is not a tracked negotiation, skipped.", th.Seller, th.Title))
			continue
		}
		threadURL := th.URL
		if strings.HasPrefix(threadURL, "/") {
			threadURL = d.baseURL + threadURL
		}
		if threadURL != "" {
			if err := d.page.Navigate(ctx, threadURL); err != nil {
				lines = append(lines, fmt.Sprintf("Could not open thread with %s: %v", th.Seller, err))
				continue
			}
			_ = d.page.WaitStable(ctx)
		}
		status, err := d.engine.Negotiate(ctx, rec.Listing, d.page)
		if err != nil {
			lines = append(lines, fmt.Sprintf("Negotiation with %s failed: %v", th.Seller, err))
			continue
		}
		lines = append(lines, status)
	}
	return strings.Join(lines, "\n"), nil
}

func (d *Dispatcher) handleScreenshot(ctx context.Context, args map[string]any) (string, error) {
	filename := getStringArg(args, "filename")
	if filename == "" {
		filename = fmt.Sprintf("screenshot_%s.png", uuid.New().String()[:8])
	}
	if !strings.HasSuffix(filename, ".png") {
		filename += ".png"
	}
	path := filepath.Join(d.shotDir, filename)
	if err := d.page.Screenshot(ctx, path); err != nil {
		return "", err
	}
	return fmt.Sprintf("Screenshot saved to %s", path), nil
}

func (d *Dispatcher) handleVoiceMessage(ctx context.Context, args map[string]any) (string, error) {
	if d.voice == nil {
		return "Voice capture is not configured, nothing recorded.", nil
	}
	seconds, ok := getIntArg(args, "duration")
	if !ok || seconds <= 0 {
		seconds = 5
	}

	text, err := d.voice.RecordAndTranscribe(ctx, seconds)
	if err != nil {
		return "", fmt.Errorf("record voice message: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("transcription came back empty")
	}

	if err := browser.FillFirst(ctx, d.page, []browser.Strategy{
		{Name: "exact placeholder", Selector: `textarea[placeholder="Type here..."]`},
		{Name: "type placeholder", Selector: `textarea[placeholder*="Type"]`},
		{Name: "any textarea", Selector: `textarea`},
	}, text, filepath.Join(d.shotDir, "chat_input_not_found.png")); err != nil {
		return "", fmt.Errorf("send transcribed message: %w", err)
	}
	if err := d.page.PressEnter(ctx); err != nil {
		return "", fmt.Errorf("submit transcribed message: %w", err)
	}
	return fmt.Sprintf("Voice message sent: %q", text), nil
}
