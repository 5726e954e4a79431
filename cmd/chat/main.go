package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/peterh/liner"

	"finchat/internal/chat"
	"finchat/internal/client"
	"finchat/internal/config"
	"finchat/internal/conversation"
	"finchat/internal/render"
	"finchat/pkg/logger"
)

var commands = []string{"/quit", "/export", "/watch", "/analyze", "/scan", "/key", "/help"}

const helpText = `Commands:
  /watch                  show your watchlist
  /watch add SYMBOL       add a symbol
  /watch rm SYMBOL        remove a symbol
  /analyze SYMBOL         run the stock analysis agent
  /scan [KIND]            run the market scanner (default: bullish)
  /key [KEY]              show or set the LLM API key
  /export FILE            save the conversation as HTML
  /quit                   exit
`

type app struct {
	cfg      *config.Config
	api      *client.Client
	session  *chat.Session
	renderer *render.Renderer
	out      io.Writer
}

func main() {
	var configPath, logPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.StringVar(&logPath, "log", "finchat-chat.log", "日志文件路径")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 日志写入文件，避免干扰终端输出
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	logger.SetOutput(logFile)

	style := ""
	if cfg.Client.Markdown {
		style = "auto"
	}
	term, err := render.NewTerminal(os.Stdout, style)
	if err != nil {
		log.Fatalf("Failed to create terminal renderer: %v", err)
	}

	api := client.New(cfg.Client)
	session := chat.NewSession(chat.HTTPTransport(api),
		chat.WithIdleTimeout(cfg.Client.IdleTimeout),
		chat.WithHistoryLimit(cfg.Client.HistoryLimit),
	)
	defer session.Close()

	renderer := render.New()
	unbind := render.Bind(session.State(), renderer, term)
	defer unbind()

	a := &app{cfg: cfg, api: api, session: session, renderer: renderer, out: os.Stdout}
	a.run(context.Background())
}

func (a *app) run(ctx context.Context) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string {
		var out []string
		for _, c := range commands {
			if strings.HasPrefix(c, strings.ToLower(in)) {
				out = append(out, c)
			}
		}
		return out
	})

	for {
		input, err := line.Prompt("you> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(a.out)
			return
		}
		if err != nil {
			logger.Errorf("prompt failed: %v", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := a.command(ctx, input); quit {
				return
			}
			continue
		}

		// Ctrl-C 只取消当前回复
		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		err = a.session.Submit(turnCtx, input)
		stop()
		if err != nil && !errors.Is(err, conversation.ErrEmptyMessage) {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	}
}

func (a *app) command(ctx context.Context, input string) (quit bool) {
	fields := strings.Fields(input)
	args := fields[1:]

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprint(a.out, helpText)
	case "/export":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: /export FILE")
			return false
		}
		a.report(a.export(args[0]))
	case "/watch":
		a.report(a.watch(ctx, args))
	case "/analyze":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: /analyze SYMBOL")
			return false
		}
		var out json.RawMessage
		a.report(a.printJSON(a.api.Analyze(ctx, args[0], &out), out))
	case "/scan":
		kind := "bullish"
		if len(args) > 0 {
			kind = args[0]
		}
		var out json.RawMessage
		a.report(a.printJSON(a.api.Scan(ctx, kind, &out), out))
	case "/key":
		a.report(a.key(ctx, args))
	default:
		fmt.Fprintf(a.out, "unknown command %s, try /help\n", fields[0])
	}
	return false
}

func (a *app) report(err error) {
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
}

func (a *app) export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	view := a.renderer.Render(a.session.State().Snapshot())
	if err := render.ExportHTML(f, "", view); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %d messages to %s\n", len(view.Messages), path)
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	user := a.cfg.Client.User()

	var (
		w   *client.Watchlist
		err error
	)
	switch {
	case len(args) == 0:
		w, err = a.api.Watchlist(ctx, user)
	case len(args) == 2 && args[0] == "add":
		w, err = a.api.AddToWatchlist(ctx, user, args[1])
	case len(args) == 2 && (args[0] == "rm" || args[0] == "remove"):
		w, err = a.api.RemoveFromWatchlist(ctx, user, args[1])
	default:
		return errors.New("usage: /watch [add|rm SYMBOL]")
	}
	if err != nil {
		return err
	}

	if len(w.Symbols) == 0 {
		fmt.Fprintln(a.out, "watchlist is empty")
		return nil
	}
	fmt.Fprintf(a.out, "watchlist: %s\n", strings.Join(w.Symbols, ", "))
	return nil
}

func (a *app) key(ctx context.Context, args []string) error {
	if len(args) > 0 {
		if err := a.api.UpdateKey(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "API key updated")
		return nil
	}

	ks, err := a.api.KeyStatus(ctx)
	if err != nil {
		return err
	}
	if !ks.IsSet {
		fmt.Fprintln(a.out, "no API key set")
		return nil
	}
	fmt.Fprintf(a.out, "API key: %s\n", ks.MaskedKey)
	return nil
}

func (a *app) printJSON(err error, raw json.RawMessage) error {
	if err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(pretty))
	return nil
}
