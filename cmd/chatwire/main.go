package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/burpheart/chatwire/internal/api"
	"github.com/burpheart/chatwire/internal/chatstream"
	"github.com/burpheart/chatwire/internal/client"
	"github.com/burpheart/chatwire/pkg/types"
)

var (
	apiBase     string
	token       string
	botID       string
	botVersion  string
	connectorID string
	listenAddr  string
	recordFile  string
	pageSize    int
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatwire",
		Short: "Chat stream gateway",
		Long:  `A streaming chat gateway that decodes upstream SSE chat events into ordered frames and reconciles paginated history.`,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&apiBase, "api-base", "https://api.coze.com", "Upstream API base URL")
	serveCmd.Flags().StringVar(&token, "token", "", "Upstream API token (or CHATWIRE_TOKEN)")
	serveCmd.Flags().StringVar(&botID, "bot", "", "Bot ID")
	serveCmd.Flags().StringVar(&botVersion, "bot-version", "", "Bot version (optional)")
	serveCmd.Flags().StringVar(&connectorID, "connector", "", "Connector ID (optional)")
	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:9090", "API listen address")
	serveCmd.Flags().StringVar(&recordFile, "record", "", "JSONL file for stream recording")
	serveCmd.Flags().IntVar(&pageSize, "page-size", 30, "Default history page size")

	replayCmd := &cobra.Command{
		Use:   "replay <capture-file>",
		Short: "Decode a captured SSE stream into frames",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	replayCmd.Flags().StringVar(&botID, "bot", "", "Bot ID used for sender attribution")

	historyCmd := &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Fetch and print reconciled conversation history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	historyCmd.Flags().StringVar(&apiBase, "api-base", "https://api.coze.com", "Upstream API base URL")
	historyCmd.Flags().StringVar(&token, "token", "", "Upstream API token (or CHATWIRE_TOKEN)")
	historyCmd.Flags().StringVar(&botID, "bot", "", "Bot ID")
	historyCmd.Flags().IntVar(&pageSize, "page-size", 30, "History page size")

	rootCmd.AddCommand(serveCmd, replayCmd, historyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter()).
		Level(level).
		With().Timestamp().Logger()
}

func resolveToken() string {
	if token != "" {
		return token
	}
	return os.Getenv("CHATWIRE_TOKEN")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	config := types.DefaultConfig()
	config.APIBase = apiBase
	config.Token = resolveToken()
	config.BotID = botID
	config.BotVersion = botVersion
	config.ConnectorID = connectorID
	config.ListenAddr = listenAddr
	config.HistoryPageSize = pageSize
	if recordFile != "" {
		config.RecordFile = expandPath(recordFile)
	}

	if config.Token == "" {
		return fmt.Errorf("token is required (use --token or CHATWIRE_TOKEN)")
	}
	if config.BotID == "" {
		return fmt.Errorf("bot id is required")
	}

	server, err := api.NewServer(*config, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		server.Stop()
	}()

	return server.Start()
}

func runReplay(cmd *cobra.Command, args []string) error {
	log := newLogger()

	f, err := os.Open(expandPath(args[0]))
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	dec := chatstream.NewDecoder(chatstream.RequestEcho{
		BotID: botID,
		Query: types.TextContent(""),
	}, chatstream.WithDecoderLogger(log))

	enc := json.NewEncoder(os.Stdout)
	stream := chatstream.NewEventStream(f)
	for dec.State() == chatstream.StateStreaming {
		ev, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read capture: %w", err)
		}
		frame, err := dec.Handle(*ev)
		if err != nil {
			return err
		}
		if frame != nil {
			if err := enc.Encode(frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}

	for event, count := range dec.IgnoredEvents() {
		log.Debug().Str("event", event).Int("count", count).Msg("ignored events")
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	log := newLogger()
	conversationID := args[0]

	tok := resolveToken()
	if tok == "" {
		return fmt.Errorf("token is required (use --token or CHATWIRE_TOKEN)")
	}

	tokens := client.NewTokenProvider(tok, nil)
	upstream := client.New(apiBase, botID, tokens,
		client.WithLogger(log),
		client.WithPageSize(pageSize),
	)

	msgs, cursor, err := upstream.Messages(context.Background(), conversationID, "", pageSize)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"messages": msgs,
		"cursor":   cursor,
	}); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
