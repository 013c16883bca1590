package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/checkpoint"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/llm"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/nodes"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/registry"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/template"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/workflow"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().Duration("timeout", 10*time.Minute, "Timeout for one workflow pass")
	cmd.Flags().String("config", "", "Engine settings file (YAML or JSON)")
	cmd.Flags().String("provider", "ollama", "LLM provider: ollama | anthropic | openai")
	cmd.Flags().String("ollama-url", "", "Ollama base URL (default: $OLLAMA_HOST or "+llm.DefaultOllamaURL+")")
	cmd.Flags().String("api-key", "", "Provider API key (default: $<PROVIDER>_API_KEY)")
	cmd.Flags().String("model", "", "Default model for prompt nodes")
	cmd.Flags().Int("retries", llm.DefaultRetry.MaxAttempts, "Attempts per LLM call on transient provider errors")
	cmd.Flags().StringArray("var", nil, "Set a ${NAME} variable for the document, as NAME=VALUE (repeatable; falls back to the environment)")
	cmd.Flags().Bool("strict-vars", false, "Fail when a ${NAME} reference has no value and no fallback")
	cmd.Flags().String("state-db", "", "SQLite file persisting node state between runs")
	cmd.Flags().String("workflow-id", "", "Key for persisted state (default: file name without extension)")
	cmd.Flags().String("codec", "msgpack", "Snapshot codec: json | msgpack")
	cmd.Flags().Bool("compress", true, "Compress snapshots with zstd")
	cmd.Flags().String("schedule", "", "Re-run on a cron schedule until interrupted, e.g. \"*/5 * * * *\"")
	cmd.Flags().String("save", "", "Write the workflow with its state and outputs to this file after running")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("progress", false, "Print node status changes to stderr")
	cmd.Flags().Bool("metrics", false, "Collect OpenTelemetry metrics and print them after running")
	cmd.Flags().String("otlp-endpoint", "", "Export traces to this OTLP/HTTP endpoint")

	return cmd
}

type runner struct {
	cmd        *cobra.Command
	logger     *slog.Logger
	graph      *nodeflow.Graph
	cp         *checkpoint.Checkpointer
	workflowID string
	timeout    time.Duration
	format     string
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cmd, cmd.ErrOrStderr())

	def, err := loadDefinition(path)
	if err != nil {
		return err
	}
	if def, err = expandDefinition(cmd, def); err != nil {
		return err
	}

	client, err := newLLMClient(cmd, logger)
	if err != nil {
		return exitError(exitProvider, "configuring LLM provider: %v", err)
	}
	model, _ := cmd.Flags().GetString("model")
	reg := registry.New()
	if err := nodes.RegisterBuiltins(reg, nodes.Deps{LLM: client, DefaultModel: model}); err != nil {
		return err
	}

	settings := nodeflow.DefaultSettings()
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		cfg, err := config.FromFile(cfgPath)
		if err != nil {
			return exitError(exitValidation, "%v", err)
		}
		settings = nodeflow.SettingsFromConfig(cfg)
	}

	metrics, _ := cmd.Flags().GetBool("metrics")
	endpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	tel, err := setupTelemetry(ctx, metrics, endpoint)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	graphOpts := []nodeflow.Option{
		nodeflow.WithLogger(logger),
		nodeflow.WithSettings(settings),
		nodeflow.WithMetrics(metrics),
		nodeflow.WithTracing(endpoint != ""),
	}
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		bus := event.NewBus(event.BusConfig{NonBlocking: true})
		defer bus.Close()
		if _, err := bus.Subscribe([]string{event.TypeNodeChanged}, progressPrinter(cmd.ErrOrStderr())); err != nil {
			return err
		}
		graphOpts = append(graphOpts, nodeflow.WithNotifier(event.NewNotifier(bus, logger)))
	}

	g, err := workflow.Build(def, reg, graphOpts...)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	r := &runner{cmd: cmd, logger: logger, graph: g}
	r.timeout, _ = cmd.Flags().GetDuration("timeout")
	r.format, _ = cmd.Flags().GetString("format")
	r.workflowID, _ = cmd.Flags().GetString("workflow-id")
	if r.workflowID == "" {
		r.workflowID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if dbPath, _ := cmd.Flags().GetString("state-db"); dbPath != "" {
		store, err := openCheckpointer(cmd, dbPath, logger)
		if err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		defer store.Store().Close()
		r.cp = store
		restored, err := r.cp.RestoreGraph(ctx, r.workflowID, g)
		if err != nil {
			return exitError(exitRuntime, "restoring state: %v", err)
		}
		logger.Debug("restored node state", slog.Int("nodes", restored), slog.String("workflow_id", r.workflowID))
	}

	res, runErr := r.runOnce(ctx)
	if runErr == nil {
		if schedule, _ := cmd.Flags().GetString("schedule"); schedule != "" {
			runErr = r.runScheduled(ctx, schedule)
		}
	}

	if savePath, _ := cmd.Flags().GetString("save"); savePath != "" {
		if err := workflow.Save(savePath, workflow.Export(g, true)); err != nil {
			return exitError(exitRuntime, "%v", err)
		}
	}
	if err := tel.WriteMetrics(ctx, cmd.ErrOrStderr()); err != nil {
		logger.Warn("metrics not written", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return runErr
	}
	if !res.Success {
		return exitError(exitRuntime, "%s", res.Message)
	}
	return nil
}

func loadDefinition(path string) (*workflow.Definition, error) {
	def, err := workflow.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitValidation, "%v", err)
	}
	return def, nil
}

// expandDefinition resolves ${NAME} references from --var flags, then
// the environment.
func expandDefinition(cmd *cobra.Command, def *workflow.Definition) (*workflow.Definition, error) {
	pairs, _ := cmd.Flags().GetStringArray("var")
	vars := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, exitError(exitValidation, "invalid --var %q: want NAME=VALUE", p)
		}
		vars[name] = value
	}

	var opts []template.Option
	if strict, _ := cmd.Flags().GetBool("strict-vars"); strict {
		opts = append(opts, template.WithMissingAction(template.MissingError))
	}
	exp := template.NewExpander(template.Chain(template.MapLookup(vars), template.EnvLookup()), opts...)
	expanded, err := def.Expand(exp)
	if err != nil {
		return nil, exitError(exitValidation, "%v", err)
	}
	return expanded, nil
}

// newLLMClient builds the provider client, wrapped to retry transient
// failures.
func newLLMClient(cmd *cobra.Command, logger *slog.Logger) (llm.Client, error) {
	client, err := newProviderClient(cmd)
	if err != nil {
		return nil, err
	}
	retry := llm.DefaultRetry
	retry.MaxAttempts, _ = cmd.Flags().GetInt("retries")
	return llm.NewRetryClient(client, retry, logger), nil
}

func newProviderClient(cmd *cobra.Command) (llm.Client, error) {
	provider, _ := cmd.Flags().GetString("provider")
	model, _ := cmd.Flags().GetString("model")
	var opts []llm.IrisOption
	if model != "" {
		opts = append(opts, llm.WithDefaultModel(model))
	}

	if provider == "" || provider == "ollama" {
		url, _ := cmd.Flags().GetString("ollama-url")
		if url == "" {
			url = os.Getenv("OLLAMA_HOST")
		}
		if url != "" && !strings.Contains(url, "://") {
			url = "http://" + url
		}
		return llm.NewOllama(url, opts...), nil
	}

	key, _ := cmd.Flags().GetString("api-key")
	if key == "" {
		key = os.Getenv(strings.ToUpper(provider) + "_API_KEY")
	}
	return llm.NewProvider(provider, key, opts...)
}

func openCheckpointer(cmd *cobra.Command, path string, logger *slog.Logger) (*checkpoint.Checkpointer, error) {
	codecName, _ := cmd.Flags().GetString("codec")
	codec, err := checkpoint.CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	compress, _ := cmd.Flags().GetBool("compress")
	store, err := checkpoint.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	return checkpoint.New(store,
		checkpoint.WithCodec(codec),
		checkpoint.WithCompression(compress),
		checkpoint.WithLogger(logger),
	), nil
}

// runOnce executes one workflow pass, persists state and prints the result.
func (r *runner) runOnce(ctx context.Context) (nodeflow.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := nodeflow.NewSession(r.graph).Run(runCtx)
	if err != nil {
		return res, exitError(exitRuntime, "%v", err)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, exitError(exitTimeout, "workflow timed out after %s", r.timeout)
	}
	if r.cp != nil {
		if err := r.cp.SaveGraph(ctx, r.workflowID, r.graph); err != nil {
			r.logger.Warn("saving state failed", slog.String("error", err.Error()))
		}
	}
	if err := writeResult(r.cmd.OutOrStdout(), r.format, r.graph, res); err != nil {
		return res, err
	}
	return res, nil
}

// runScheduled re-runs the workflow on schedule until ctx is done. Runs
// never overlap; a tick that fires during a run is skipped.
func (r *runner) runScheduled(ctx context.Context, spec string) error {
	sched, err := cronParser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return exitError(exitValidation, "invalid schedule: %v", err)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() {
		if _, err := r.runOnce(ctx); err != nil {
			r.logger.Error("scheduled run failed", slog.String("error", err.Error()))
		}
	}))
	r.logger.Info("workflow scheduled", slog.String("schedule", spec), slog.Time("next", sched.Next(time.Now())))

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func progressPrinter(w io.Writer) event.Handler {
	return event.TypedHandler(func(_ context.Context, _ event.Metadata, p event.NodeChanged) error {
		_, err := fmt.Fprintf(w, "[%s] %s\n", p.Title, p.Status)
		return err
	})
}

type jsonResult struct {
	SessionID  string                    `json:"session_id"`
	Success    bool                      `json:"success"`
	Message    string                    `json:"message"`
	Processed  int                       `json:"processed"`
	Faulted    []string                  `json:"faulted,omitempty"`
	DurationMs int64                     `json:"duration_ms"`
	Outputs    map[string]map[string]any `json:"outputs"`
}

// writeResult prints the session summary and the outputs of terminal
// nodes.
func writeResult(w io.Writer, format string, g *nodeflow.Graph, res nodeflow.Result) error {
	terminals := g.TerminalNodes()

	if format == "json" {
		out := jsonResult{
			SessionID:  res.SessionID,
			Success:    res.Success,
			Message:    res.Message,
			Processed:  res.Processed,
			Faulted:    res.Faulted,
			DurationMs: res.Duration.Milliseconds(),
			Outputs:    make(map[string]map[string]any, len(terminals)),
		}
		for _, n := range terminals {
			out.Outputs[n.ID()] = n.Cache()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintln(w, res.Message)
	for _, n := range terminals {
		cache := n.Cache()
		ports := make([]string, 0, len(cache))
		for name := range cache {
			ports = append(ports, name)
		}
		sort.Strings(ports)
		for _, port := range ports {
			fmt.Fprintf(w, "\n== %s / %s ==\n%v\n", n.Title(), port, cache[port])
		}
	}
	return nil
}
