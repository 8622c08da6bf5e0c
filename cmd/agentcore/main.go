// Command agentcore runs the tool-using conversational agent.
//
//	agentcore [-config file] serve                 websocket chat server
//	agentcore [-config file] mcp                   MCP server on stdio
//	agentcore [-config file] migrate               apply database migrations
//	agentcore [-config file] import-openapi FILE   register tools from an OpenAPI document
//	agentcore [-config file] ingest [-name N] [-metric M] [-replace] KB_ID FILE
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/database"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/service"
	"github.com/ZanzyTHEbar/agentcore/agentcore/transport/mcpserver"
	"github.com/ZanzyTHEbar/agentcore/agentcore/transport/ws"
)

const usage = `usage: agentcore [-config file] <command> [args]

commands:
  serve                          run the websocket chat server
  mcp                            run the MCP server on stdio
  migrate                        apply database migrations
  import-openapi FILE            register tools from an OpenAPI document
  ingest [-name N] [-metric M] [-replace] KB_ID FILE
                                 index a text file into a knowledge base
  version                        print the version
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "agentcore:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(agentcore.DefaultAppName, flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("AGENTCORE_CONFIG"), "path to config file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	if cmd == "version" {
		fmt.Println(agentcore.Version)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return serve(ctx, a)
	case "mcp":
		return serveMCP(a)
	case "migrate":
		return migrate(ctx, a)
	case "import-openapi":
		return importOpenAPI(ctx, a, rest)
	case "ingest":
		return ingest(ctx, a, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func serve(ctx context.Context, a *app) error {
	svc, err := a.wire()
	if err != nil {
		return err
	}
	handler := ws.NewHandler(svc.sessions, a.cfg.Server.AllowedOrigins, a.logger.With().Str("component", "ws").Logger())
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           ws.NewMux(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", srv.Addr).Str("path", ws.ChatPath).Msg("chat server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveMCP(a *app) error {
	svc, err := a.wire()
	if err != nil {
		return err
	}
	s := mcpserver.New(svc.sessions, svc.retriever, mcpserver.RetrieveDefaults{
		TopK:      a.cfg.Retrieval.TopK,
		Threshold: a.cfg.Retrieval.Threshold,
	}, a.logger.With().Str("component", "mcp").Logger())
	return mcpserver.Serve(s)
}

func migrate(ctx context.Context, a *app) error {
	if err := database.Migrate(ctx, a.db); err != nil {
		return err
	}
	version, err := database.Version(ctx, a.db)
	if err != nil {
		return err
	}
	fmt.Printf("database at version %d\n", version)
	return nil
}

func importOpenAPI(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: agentcore import-openapi FILE")
	}
	doc, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	caps, err := capability.FromOpenAPI(doc)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if err := a.metadata.UpsertTool(ctx, database.ToolRecordFromCapability(c)); err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", c.ID, c.CallMethod())
	}
	a.logger.Info().Str("file", args[0]).Int("tools", len(caps)).Msg("openapi import complete")
	return nil
}

func ingest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	name := fs.String("name", "", "knowledge base display name (new knowledge bases only)")
	metric := fs.String("metric", "", "similarity metric for a new knowledge base: ip, cosine or l2")
	maxChars := fs.Int("max-chars", service.DefaultChunkChars, "maximum characters per chunk")
	replace := fs.Bool("replace", false, "drop the knowledge base's existing chunks first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: agentcore ingest [-name N] [-metric M] [-replace] KB_ID FILE")
	}
	kbID, path := fs.Arg(0), fs.Arg(1)

	rec, err := a.metadata.GetKnowledgeBase(ctx, kbID)
	if errors.Is(err, database.ErrNotFound) {
		if *metric != "" {
			if _, err := service.ParseMetric(*metric); err != nil {
				return err
			}
		}
		rec = database.KnowledgeBaseRecord{ID: kbID, Name: *name, Metric: *metric}
		if rec.Name == "" {
			rec.Name = kbID
		}
		if err := a.metadata.UpsertKnowledgeBase(ctx, rec); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	embedder, err := a.embedder()
	if err != nil {
		return err
	}
	store := service.NewSQLVectorStore(a.db)
	kb := rec.Capability()
	if *replace {
		if err := store.DeleteCollection(ctx, kb.CollectionName()); err != nil {
			return err
		}
		a.logger.Info().Str("collection", kb.CollectionName()).Msg("existing chunks dropped")
	}
	ing := service.NewIngester(embedder, store, a.cfg.Retrieval.Concurrency,
		a.logger.With().Str("component", "ingest").Logger())
	ids, err := ing.Ingest(ctx, kb, path, string(text), *maxChars)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d chunks into %s\n", len(ids), kb.CollectionName())
	return nil
}
