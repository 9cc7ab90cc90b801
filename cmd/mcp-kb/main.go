// mcp-kb is an MCP server for a local markdown knowledge base with
// semantic code search.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/knowledgetools/mcp-kb/builtin"
	"github.com/knowledgetools/mcp-kb/internal/config"
	"github.com/knowledgetools/mcp-kb/internal/index"
	"github.com/knowledgetools/mcp-kb/internal/kb"
	"github.com/knowledgetools/mcp-kb/internal/mcp"
	"github.com/knowledgetools/mcp-kb/pkg/provider"
	"github.com/knowledgetools/mcp-kb/pkg/types"
)

var (
	version   = "0.1.0"
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mcp-kb",
	Short: "MCP server for a markdown knowledge base with semantic code search",
	Long: `mcp-kb keeps typed markdown items (issues, plans, docs, knowledge,
sessions, dailies) under .mcp-kb/ and mirrors them into a SQLite index.
It also indexes the surrounding codebase for semantic search via vector
embeddings.

The markdown files are the source of truth; the index can always be
rebuilt from them.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcp-kb %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Run: func(cmd *cobra.Command, args []string) {
		stdio, _ := cmd.Flags().GetBool("stdio")
		runServe(stdio)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index the codebase for semantic search",
	Long:  `Index the git-tracked files of a project. If no path is provided, indexes the current directory.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		runIndex(path, force)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed code by semantic similarity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		extensions, _ := cmd.Flags().GetStringSlice("ext")
		runSearch(args[0], limit, extensions)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show code index status",
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		runStatus(verbose)
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the item index from the markdown files on disk",
	Run: func(cmd *cobra.Command, args []string) {
		runRebuild()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch for file changes and keep the code index current",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		debounceMs, _ := cmd.Flags().GetInt("debounce")
		runWatch(path, debounceMs)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Manage knowledge base items",
}

var itemListCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "List items of a type",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		statuses, _ := cmd.Flags().GetStringSlice("status")
		runItemList(args[0], all, limit, statuses)
	},
}

var itemGetCmd = &cobra.Command{
	Use:   "get <type> <id>",
	Short: "Show one item in full",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runItemGet(args[0], args[1])
	},
}

var itemCreateCmd = &cobra.Command{
	Use:   "create <type> <title>",
	Short: "Create an item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		req := &kb.CreateItemRequest{Type: args[0], Title: args[1]}
		req.Description, _ = cmd.Flags().GetString("description")
		req.Content, _ = cmd.Flags().GetString("content")
		req.Priority, _ = cmd.Flags().GetString("priority")
		req.Status, _ = cmd.Flags().GetString("status")
		req.Tags, _ = cmd.Flags().GetStringSlice("tags")
		req.Related, _ = cmd.Flags().GetStringSlice("related")
		runItemCreate(req)
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <type> <id>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runItemDelete(args[0], args[1])
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags with usage counts",
	Run: func(cmd *cobra.Command, args []string) {
		runTagList()
	},
}

var tagSearchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Find tags by substring",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTagSearch(args[0])
	},
}

var typeCmd = &cobra.Command{
	Use:   "type",
	Short: "Manage item types",
}

var typeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered item types",
	Run: func(cmd *cobra.Command, args []string) {
		runTypeList()
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the shared working state",
}

var stateGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current working-state document",
	Run: func(cmd *cobra.Command, args []string) {
		runStateGet()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	serveCmd.Flags().Bool("stdio", true, "use stdio transport (for MCP)")

	indexCmd.Flags().Bool("force", false, "force reindex all files")

	searchCmd.Flags().IntP("limit", "l", 10, "maximum results")
	searchCmd.Flags().StringSlice("ext", nil, "file extension filter, e.g. .go,.ts")

	statusCmd.Flags().BoolP("verbose", "v", false, "show detailed statistics")

	watchCmd.Flags().Int("debounce", 500, "debounce time in milliseconds")

	itemListCmd.Flags().Bool("all", false, "include closed items")
	itemListCmd.Flags().IntP("limit", "l", 0, "maximum items (0 = no limit)")
	itemListCmd.Flags().StringSliceP("status", "s", nil, "filter by status name (e.g. Open, Review)")

	itemCreateCmd.Flags().StringP("description", "d", "", "short description")
	itemCreateCmd.Flags().String("content", "", "markdown body")
	itemCreateCmd.Flags().StringP("priority", "p", "", "priority (high, medium, low)")
	itemCreateCmd.Flags().StringP("status", "s", "", "initial status")
	itemCreateCmd.Flags().StringSliceP("tags", "t", nil, "tags")
	itemCreateCmd.Flags().StringSlice("related", nil, "related item references, e.g. issues-4")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	itemCmd.AddCommand(itemListCmd)
	itemCmd.AddCommand(itemGetCmd)
	itemCmd.AddCommand(itemCreateCmd)
	itemCmd.AddCommand(itemDeleteCmd)

	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagSearchCmd)

	typeCmd.AddCommand(typeListCmd)

	stateCmd.AddCommand(stateGetCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(typeCmd)
	rootCmd.AddCommand(stateCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// createProviders builds the vector store, embedding provider and chunker
// from config via the default registry.
func createProviders(cfg *config.Config) (provider.VectorStore, provider.EmbeddingProvider, provider.ChunkingStrategy, error) {
	store, err := provider.DefaultRegistry.CreateVectorStore(cfg.VectorStore.Provider)
	if err != nil {
		return nil, nil, nil, err
	}

	embedding, err := provider.DefaultRegistry.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Endpoint:  cfg.Embedding.Endpoint,
		APIKey:    cfg.Embedding.APIKey,
		BatchSize: cfg.Embedding.BatchSize,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	chunker, err := provider.DefaultRegistry.CreateChunking(cfg.Chunking.Strategy, provider.ChunkingConfig{
		Strategy: cfg.Chunking.Strategy,
		Lines:    cfg.Chunking.Lines,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return store, embedding, chunker, nil
}

// createIndexer wires the providers into an indexer for the given project.
func createIndexer(projectDir string, cfg *config.Config) (*index.Indexer, error) {
	store, embedding, chunker, err := createProviders(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.Init(config.VectorDBPath(projectDir)); err != nil {
		embedding.Close()
		chunker.Close()
		return nil, fmt.Errorf("failed to init vector store: %w", err)
	}

	return index.New(index.Config{
		ProjectDir: projectDir,
		Config:     cfg,
		Store:      store,
		Embedding:  embedding,
		Chunker:    chunker,
	}), nil
}

func loadConfig(projectDir string) *config.Config {
	cfg, warnings, err := config.Load(projectDir)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}
	return cfg
}

func openRepository() *kb.Repository {
	cwd, _ := os.Getwd()
	repo, err := kb.Open(config.DataDir(cwd))
	if err != nil {
		slog.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}
	return repo
}

func runServe(stdio bool) {
	cwd, _ := os.Getwd()
	slog.Info("starting MCP server", "stdio", stdio)

	if !stdio {
		fmt.Println("Only stdio transport is supported. Use --stdio.")
		os.Exit(1)
	}

	cfg := loadConfig(cwd)

	repo, err := kb.Open(config.DataDir(cwd))
	if err != nil {
		slog.Error("failed to open knowledge base", "error", err)
		os.Exit(1)
	}

	indexer, err := createIndexer(cwd, cfg)
	if err != nil {
		repo.Close()
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}

	server, err := mcp.New(mcp.Config{
		ProjectDir: cwd,
		Config:     cfg,
		Repository: repo,
		Indexer:    indexer,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := server.Close(); err != nil {
			slog.Warn("shutdown error", "error", err)
		}
		slog.Info("shutdown complete")
		os.Exit(0)
	}()

	defer func() {
		signal.Stop(sigChan)
		server.Close()
	}()

	slog.Info("MCP server running (press Ctrl+C to stop)")
	if err := server.ServeStdio(); err != nil {
		if ctx.Err() != nil {
			slog.Info("server stopped")
		} else {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func runIndex(path string, force bool) {
	absPath, _ := filepath.Abs(path)
	slog.Info("indexing", "path", absPath, "force", force)

	cfg := loadConfig(absPath)

	indexer, err := createIndexer(absPath, cfg)
	if err != nil {
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}
	defer indexer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		slog.Info("received interrupt signal, stopping indexing...", "signal", sig)
		cancel()
	}()

	report, err := indexer.IndexAll(ctx, force, func(p types.IndexProgress) {
		fmt.Printf("\rFiles: %d/%d", p.ProcessedFiles, p.TotalFiles)
	})
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nIndexing interrupted. Progress saved - run again to resume.")
			return
		}
		if errors.Is(err, types.ErrNotGitRepo) {
			fmt.Println("Not a git repository. Only git-tracked projects can be indexed.")
			os.Exit(1)
		}
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}

	fmt.Println("\nIndexing complete!")
	fmt.Printf("Scanned: %d, Indexed: %d, Skipped: %d, Removed: %d, Chunks: %d (%s)\n",
		report.FilesScanned, report.FilesIndexed, report.FilesSkipped,
		report.FilesRemoved, report.TotalChunks, report.Duration.Round(time.Millisecond))
}

func runSearch(query string, limit int, extensions []string) {
	cwd, _ := os.Getwd()
	slog.Debug("searching", "query", query, "limit", limit)

	cfg := loadConfig(cwd)

	indexer, err := createIndexer(cwd, cfg)
	if err != nil {
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}
	defer indexer.Close()

	results, err := indexer.Search(context.Background(), query, limit, extensions)
	if err != nil {
		if errors.Is(err, types.ErrIndexNotFound) {
			fmt.Println("No index found. Run 'mcp-kb index' first.")
			os.Exit(1)
		}
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	for i, r := range results {
		fmt.Printf("\n=== Result %d (similarity: %.3f) ===\n", i+1, r.Similarity)
		fmt.Printf("File: %s:%d-%d\n", r.Chunk.FilePath, r.Chunk.StartLine, r.Chunk.EndLine)
		fmt.Printf("\n%s\n", r.Chunk.Content)
	}
}

func runStatus(verbose bool) {
	cwd, _ := os.Getwd()

	cfg := loadConfig(cwd)

	indexer, err := createIndexer(cwd, cfg)
	if err != nil {
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}
	defer indexer.Close()

	stats, err := indexer.Stats()
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		os.Exit(1)
	}
	meta, err := indexer.Metadata()
	if err != nil {
		slog.Error("failed to get metadata", "error", err)
		os.Exit(1)
	}

	if meta == nil {
		fmt.Println("No index found. Run 'mcp-kb index' to create one.")
		return
	}

	fmt.Println("=== Index Status ===")
	fmt.Printf("Indexed files: %d\n", stats.IndexedFiles)
	fmt.Printf("Total chunks:  %d\n", stats.TotalChunks)
	fmt.Printf("Database size: %s\n", formatBytes(stats.DBSizeBytes))
	if !meta.LastUpdated.IsZero() {
		fmt.Printf("Last updated:  %s\n", meta.LastUpdated.Format("2006-01-02 15:04:05"))
	}

	if verbose {
		fmt.Println("\n=== Configuration ===")
		fmt.Printf("Embedding:  %s/%s\n", meta.EmbeddingProvider, meta.EmbeddingModel)
		fmt.Printf("Dimensions: %d\n", meta.EmbeddingDimensions)
		fmt.Printf("Chunk size: %d lines\n", meta.ChunkLines)
	}
}

func runRebuild() {
	repo := openRepository()
	defer repo.Close()

	count, err := repo.RebuildIndex()
	if err != nil {
		slog.Error("rebuild failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Rebuilt index from %d items\n", count)
}

func runWatch(path string, debounceMs int) {
	absPath, _ := filepath.Abs(path)
	slog.Info("watching for changes", "path", absPath, "debounce_ms", debounceMs)

	cfg := loadConfig(absPath)

	indexer, err := createIndexer(absPath, cfg)
	if err != nil {
		slog.Error("failed to create indexer", "error", err)
		os.Exit(1)
	}
	defer indexer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	watcher, err := index.NewWatcher(index.WatcherConfig{
		Indexer:      indexer,
		DebounceTime: time.Duration(debounceMs) * time.Millisecond,
	})
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()

	fmt.Printf("Watching %s for changes (press Ctrl+C to stop)\n", absPath)

	if err := watcher.Watch(ctx); err != nil {
		if ctx.Err() != nil {
			slog.Info("watcher stopped")
		} else {
			slog.Error("watcher error", "error", err)
			os.Exit(1)
		}
	}
}

func runConfigInit() {
	cwd, _ := os.Getwd()
	cfg := config.DefaultConfig()

	if err := config.Save(cwd, cfg); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created config at %s\n", config.ConfigPath(cwd))
}

func runConfigValidate() {
	cwd, _ := os.Getwd()

	cfg, warnings, err := config.Load(cwd)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("Error: %v\n", e)
		}
		os.Exit(1)
	}

	fmt.Println("Configuration is valid")
}

func runItemList(itemType string, includeClosed bool, limit int, statuses []string) {
	repo := openRepository()
	defer repo.Close()

	items, err := repo.GetItems(kb.ListItemsOptions{
		Type:          itemType,
		IncludeClosed: includeClosed,
		StatusNames:   statuses,
		Limit:         limit,
	})
	if err != nil {
		exitItemError(err)
	}

	if len(items) == 0 {
		fmt.Println("No items found")
		return
	}

	for _, it := range items {
		line := fmt.Sprintf("%-14s %s", it.Ref(), it.Title)
		if it.Status != "" {
			line += fmt.Sprintf(" [%s]", it.Status)
		}
		if len(it.Tags) > 0 {
			line += " (" + strings.Join(it.Tags, ", ") + ")"
		}
		fmt.Println(line)
	}
}

func runItemGet(itemType, id string) {
	repo := openRepository()
	defer repo.Close()

	it, err := repo.GetItem(itemType, id)
	if err != nil {
		exitItemError(err)
	}

	fmt.Printf("%s: %s\n", it.Ref(), it.Title)
	if it.Description != "" {
		fmt.Printf("Description: %s\n", it.Description)
	}
	if it.Status != "" {
		fmt.Printf("Status: %s", it.Status)
		if it.Priority != "" {
			fmt.Printf("  Priority: %s", it.Priority)
		}
		fmt.Println()
	}
	if len(it.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(it.Tags, ", "))
	}
	if len(it.Related) > 0 {
		fmt.Printf("Related: %s\n", strings.Join(it.Related, ", "))
	}
	fmt.Printf("Updated: %s\n", it.UpdatedAt.Format("2006-01-02 15:04:05"))
	if it.Content != "" {
		fmt.Printf("\n%s\n", it.Content)
	}
}

func runItemCreate(req *kb.CreateItemRequest) {
	repo := openRepository()
	defer repo.Close()

	it, err := repo.CreateItem(req)
	if err != nil {
		exitItemError(err)
	}

	fmt.Printf("Created %s\n", it.Ref())
}

func runItemDelete(itemType, id string) {
	repo := openRepository()
	defer repo.Close()

	if err := repo.DeleteItem(itemType, id); err != nil {
		exitItemError(err)
	}

	fmt.Printf("Deleted %s\n", kb.FormatRef(itemType, id))
}

func runTagList() {
	repo := openRepository()
	defer repo.Close()

	tags, err := repo.GetTags()
	if err != nil {
		slog.Error("failed to list tags", "error", err)
		os.Exit(1)
	}

	if len(tags) == 0 {
		fmt.Println("No tags registered")
		return
	}

	for _, tag := range tags {
		fmt.Printf("%-24s %d\n", tag.Name, tag.Count)
	}
}

func runTagSearch(pattern string) {
	repo := openRepository()
	defer repo.Close()

	tags, err := repo.SearchTags(pattern)
	if err != nil {
		slog.Error("tag search failed", "error", err)
		os.Exit(1)
	}

	if len(tags) == 0 {
		fmt.Println("No matching tags")
		return
	}

	for _, tag := range tags {
		fmt.Printf("%-24s %d\n", tag.Name, tag.Count)
	}
}

func runTypeList() {
	repo := openRepository()
	defer repo.Close()

	defs, err := repo.GetAllTypes()
	if err != nil {
		slog.Error("failed to list types", "error", err)
		os.Exit(1)
	}

	for _, def := range defs {
		kind := "custom"
		if def.Builtin {
			kind = "builtin"
		}
		fmt.Printf("%-14s %-10s %-8s %s\n", def.Name, def.BaseType, kind, def.Description)
	}
}

func runStateGet() {
	repo := openRepository()
	defer repo.Close()

	state, err := repo.GetCurrentState()
	if err != nil {
		slog.Error("failed to read state", "error", err)
		os.Exit(1)
	}

	if !state.Metadata.UpdatedAt.IsZero() {
		fmt.Printf("Updated: %s", state.Metadata.UpdatedAt.Format("2006-01-02 15:04:05"))
		if state.Metadata.UpdatedBy != "" {
			fmt.Printf(" by %s", state.Metadata.UpdatedBy)
		}
		fmt.Println()
	}
	if len(state.Metadata.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(state.Metadata.Tags, ", "))
	}
	if len(state.Metadata.Related) > 0 {
		fmt.Printf("Related: %s\n", strings.Join(state.Metadata.Related, ", "))
	}
	if state.Content == "" {
		fmt.Println("(empty)")
		return
	}
	fmt.Printf("\n%s\n", state.Content)
}

func exitItemError(err error) {
	switch {
	case kb.IsNotFound(err):
		fmt.Printf("Not found: %v\n", err)
	case kb.IsValidation(err):
		fmt.Printf("Invalid request: %v\n", err)
	default:
		slog.Error("operation failed", "error", err)
	}
	os.Exit(1)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), "KMGTPE"[exp:exp+1]+"B")
}
