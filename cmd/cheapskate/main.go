package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/agent"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/browser"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/config"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/llm"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/mcpserver"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/negotiate"
	"github.com/WolfverusWasTaken/cheapskate.ai/internal/trace"
)

func main() {
	configPath := flag.String("config", "", "Path to the config file (empty uses defaults plus env)")
	headless := flag.Bool("headless", false, "Force headless Chrome regardless of config")
	ssePort := flag.Int("sse-port", 0, "Also expose the action catalog over MCP SSE on this port")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *headless {
		t := true
		cfg.Browser.Headless = &t
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
	}

	// The REPL owns stdout, so logs go to a file.
	if cfg.App.LogFile != "" {
		logFile, err := os.OpenFile(cfg.App.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	}

	provider, err := llm.New(cfg.LLM)
	if err != nil {
		log.Fatalf("failed to initialize completion provider: %v", err)
	}

	store, err := negotiate.NewStore(cfg.Storage.HistoryFile)
	if err != nil {
		log.Fatalf("failed to open history store: %v", err)
	}

	driver := browser.NewDriver(cfg.Browser, cfg.Marketplace)
	if err := driver.Start(ctx); err != nil {
		log.Fatalf("failed to start browser: %v", err)
	}
	defer driver.Close()

	if err := driver.Login(ctx); err != nil {
		log.Printf("Login did not complete: %v", err)
		fmt.Println("Heads up: login did not complete, negotiation messages may not deliver.")
	}

	page := driver.Page()
	engine := negotiate.NewEngine(provider, store, cfg.Negotiation, cfg.Storage.ScreenshotDir)

	flight, err := trace.NewRecorder(trace.DefaultDir)
	if err != nil {
		log.Printf("Trace recorder unavailable: %v", err)
	} else if err := flight.Start("session"); err != nil {
		log.Printf("Trace recorder unavailable: %v", err)
	} else {
		defer flight.Close()
		engine.SetFlightRecorder(flight)
	}
	dispatcher := agent.NewDispatcher(provider, engine, store, page, nil, cfg.Marketplace.BaseURL, cfg.Storage.ScreenshotDir)

	overlays := browser.NewOverlayMonitor(page, cfg.Monitor.GetOverlayInterval())
	overlays.Start(ctx)
	defer overlays.Stop()

	live := browser.NewLiveCapture(page, cfg.Monitor.GetCaptureInterval(), cfg.Monitor.LivePath)
	live.Start(ctx)
	defer live.Stop()

	if cfg.MCP.SSEPort > 0 {
		mcpSrv := mcpserver.NewServer(cfg.App.Name, cfg.App.Version, dispatcher.Registry())
		go func() {
			log.Printf("starting MCP SSE server on port %d", cfg.MCP.SSEPort)
			if err := mcpSrv.StartSSE(ctx, cfg.MCP.SSEPort); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("MCP SSE server exited: %v", err)
			}
		}()
	}

	runREPL(ctx, dispatcher, engine, live)
}

const replHelp = `Commands:
  listings       show the current listings
  open <n>       open listing n
  chat <n>       open the chat for listing n
  lowball <n>    start a lowball negotiation for listing n
  inbox          check the inbox and reply to unread chats
  screenshot     capture the current page
  history        show negotiation history
  help           show this help
  quit           exit
Anything else is sent to the assistant as-is.`

func runREPL(ctx context.Context, dispatcher *agent.Dispatcher, engine *negotiate.Engine, live *browser.LiveCapture) {
	fmt.Println("Cheapskate ready. Type 'help' for commands.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if ctx.Err() != nil {
			return
		}
		if live.Pending() {
			fmt.Println("* Unread chat activity detected. Type 'inbox' to follow up.")
			live.Clear()
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "quit" || line == "exit":
			fmt.Println("Bye.")
			return
		case line == "help":
			fmt.Println(replHelp)
			continue
		case line == "history":
			fmt.Println(engine.Summary(""))
			continue
		}

		out, err := dispatcher.Run(ctx, rewriteShortcut(line))
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println(out)
	}
}

// rewriteShortcut maps the literal REPL shortcuts onto the utterances the
// dispatcher understands; everything else passes through untouched.
func rewriteShortcut(line string) string {
	fields := strings.Fields(line)
	switch fields[0] {
	case "listings":
		return "show me the current listings"
	case "open":
		if len(fields) == 2 {
			return "open listing " + fields[1]
		}
	case "chat":
		if len(fields) == 2 {
			return "open the chat for listing " + fields[1]
		}
	case "lowball":
		if len(fields) == 2 {
			return "start a lowball negotiation for listing " + fields[1]
		}
	case "inbox", "check":
		return "go to the inbox and reply to unread chats"
	case "screenshot":
		return "take a screenshot of the current page"
	}
	return line
}
