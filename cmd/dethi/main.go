package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/dethi/internal/export"
	"github.com/pavelanni/dethi/internal/handler"
	appI18n "github.com/pavelanni/dethi/internal/i18n"
	"github.com/pavelanni/dethi/internal/ingest"
	"github.com/pavelanni/dethi/internal/llm"
	"github.com/pavelanni/dethi/internal/model"
	"github.com/pavelanni/dethi/internal/pipeline"
	"github.com/pavelanni/dethi/internal/selection"
	"github.com/pavelanni/dethi/internal/store"
	"github.com/pavelanni/dethi/internal/wizard"
	"github.com/pavelanni/dethi/internal/workspace"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dethi",
		Short: "Exam matrix, specification and paper generator for Vietnamese schools",
	}

	serve := serveCmd()
	root.AddCommand(serve, generateCmd(), filterCmd(), historyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `dethi --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-provider", "gemini", "Generation backend (gemini, openai, mock)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (openai provider only)")
	f.String("llm-key", "", "API key for the generation backend")
	f.String("llm-model", "gemini-2.5-flash", "Model name")
	f.Duration("llm-timeout", pipeline.DefaultTimeout, "Timeout of a single generation call")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wizard web server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "dethi.db", "SQLite database path for the audit log")
	f.StringP("lang", "l", "vi", "Default UI language (vi, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /dethi)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("access-password", "", "Password required to use the wizard (or set DETHI_ACCESS_PASSWORD); empty disables the gate")
	f.Duration("workspace-ttl", 2*time.Hour, "Drop wizard sessions idle for this long")
	f.Int64("max-upload", 20, "Maximum upload size in MiB")
	addLLMFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the matrix, specification and exam stages without the web UI",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("curriculum", "c", "", "Curriculum or teaching plan file (required)")
	f.String("subject", "", "Subject (defaults to the one in the curriculum)")
	f.String("grade", "", "Grade (defaults to the one in the curriculum)")
	f.String("exam-type", model.ExamMidTerm1, "Exam type label")
	f.Int("duration", 0, "Duration in minutes (0 = exam type default)")
	f.String("notes", "", "Additional notes for the generator")
	f.StringToInt("questions", nil, "Question counts as type_level=N, e.g. type1_biet=4,essay_van_dung=1")
	f.String("until", string(model.SlotExam), "Last document to produce (matrix, specs, exam)")
	f.StringP("format", "f", export.FormatWord, "Output format (doc, html)")
	f.StringP("output", "o", ".", "Output directory")
	f.String("db", "", "SQLite database path; when set, generation calls are recorded")
	f.StringP("lang", "l", "vi", "Language of messages (vi, en)")
	addLLMFlags(cmd)
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("curriculum")
	return cmd
}

func filterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Print the lessons the smart filter selects for an exam type",
		RunE:  runFilter,
	}
	f := cmd.Flags()
	f.StringP("curriculum", "c", "", "Curriculum file in YAML, JSON or XLSX (required)")
	f.String("exam-type", model.ExamMidTerm1, "Exam type label")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	_ = cmd.MarkFlagRequired("curriculum")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the generation and download log as JSON",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("db", "dethi.db", "SQLite database path")
	f.Int("limit", 0, "Maximum events of each kind (0 = all)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("DETHI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("dethi")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/dethi")
	v.AddConfigPath("/etc/dethi")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func llmConfig(v *viper.Viper) llm.Config {
	return llm.Config{
		Provider: strings.ToLower(v.GetString("llm-provider")),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
		Timeout:  v.GetDuration("llm-timeout"),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if n, err := db.PruneGatePasses(ctx); err != nil {
		slog.Warn("pruning gate passes failed", "error", err)
	} else if n > 0 {
		slog.Debug("pruned lapsed gate passes", "count", n)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmCfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, llmCfg, db)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}

	var accessHash string
	if pw := v.GetString("access-password"); pw != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash access password: %w", err)
		}
		accessHash = string(hash)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		BasePath:       basePath,
		SecureCookies:  v.GetBool("secure-cookies"),
		AccessHash:     accessHash,
		MaxUploadBytes: v.GetInt64("max-upload") << 20,
		LLMTimeout:     llmCfg.Timeout,
		WorkspaceTTL:   v.GetDuration("workspace-ttl"),
	}

	workspaces := workspace.NewManager(cfg.WorkspaceTTL)
	go workspaces.Run(ctx, time.Minute)

	h := handler.New(db, workspaces, pipeline.New(provider, pipeline.WithTimeout(cfg.LLMTimeout)), cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", srv.Addr,
		"provider", llmCfg.Provider,
		"model", provider.ModelID(),
		"lang", lang,
		"base_path", basePath,
		"access_gate", accessHash != "",
		"workspace_ttl", cfg.WorkspaceTTL,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(v.GetString("lang")))

	format := v.GetString("format")
	if format != export.FormatWord && format != export.FormatHTML {
		return fmt.Errorf("%q: %w", format, export.ErrUnknownFormat)
	}
	until, ok := model.ParseSlot(v.GetString("until"))
	if !ok {
		return fmt.Errorf("unknown document %q", v.GetString("until"))
	}
	counts, err := cmd.Flags().GetStringToInt("questions")
	if err != nil {
		return err
	}
	actions, err := questionActions(counts)
	if err != nil {
		return err
	}

	var rec llm.EventRecorder
	if path := v.GetString("db"); path != "" {
		db, err := store.New(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		rec = db
	}
	llmCfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, llmCfg, rec)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	p := pipeline.New(provider, pipeline.WithTimeout(llmCfg.Timeout))

	path := v.GetString("curriculum")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read curriculum: %w", err)
	}

	ws := workspace.NewManager(time.Hour).Create()
	ws.Dispatch(wizard.SetExamType{ExamType: v.GetString("exam-type")})
	if err := p.ImportCurriculum(ctx, ws, ingest.File{Name: filepath.Base(path), Data: data}); err != nil {
		return fmt.Errorf("import curriculum: %w", err)
	}

	info := ws.Snapshot().Info
	if s := v.GetString("subject"); s != "" {
		info.Subject = s
	}
	if g := v.GetString("grade"); g != "" {
		info.Grade = g
	}
	ws.Dispatch(append(actions, wizard.SetInfo{
		Subject:  info.Subject,
		Grade:    info.Grade,
		Duration: v.GetInt("duration"),
		Notes:    v.GetString("notes"),
	})...)

	s := ws.Snapshot()
	slog.Info("curriculum loaded",
		"chapters", len(s.Curriculum.Chapters),
		"selected_lessons", s.Selection.Len(),
		"selected_periods", s.SelectedPeriods(),
	)

	steps := []struct {
		slot model.Slot
		run  func(context.Context, *workspace.Workspace) error
	}{
		{model.SlotMatrix, p.GenerateMatrix},
		{model.SlotSpecs, p.GenerateSpecs},
		{model.SlotExam, p.GenerateExam},
	}
	outDir := v.GetString("output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, step := range steps {
		if err := step.run(ctx, ws); err != nil {
			return fmt.Errorf("%s: %w", step.slot, err)
		}
		s := ws.Snapshot()
		f, err := export.Package(s.Docs.Get(step.slot), export.Name(step.slot, s.Info), format)
		if err != nil {
			return err
		}
		out := filepath.Join(outDir, f.Filename)
		if err := os.WriteFile(out, f.Body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		slog.Info("document written", "slot", step.slot, "path", out, "bytes", len(f.Body))
		if step.slot == until {
			break
		}
	}
	return nil
}

// questionActions turns "type_level" keys into count updates.
func questionActions(counts map[string]int) ([]wizard.Action, error) {
	var actions []wizard.Action
	for key, n := range counts {
		t, l, ok := parseCell(key)
		if !ok {
			return nil, fmt.Errorf("unknown question cell %q", key)
		}
		if n > model.MaxQuestionCount {
			return nil, fmt.Errorf("question cell %s: %d above %d", key, n, model.MaxQuestionCount)
		}
		actions = append(actions, wizard.SetCount{Type: t, Level: l, Value: max(n, 0)})
	}
	return actions, nil
}

func parseCell(key string) (model.QuestionType, model.Level, bool) {
	for _, t := range model.QuestionTypes {
		if rest, ok := strings.CutPrefix(key, t.Key()+"_"); ok {
			l, ok := model.ParseLevel(rest)
			return t, l, ok
		}
	}
	return 0, 0, false
}

func runFilter(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	path := v.GetString("curriculum")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read curriculum: %w", err)
	}
	cur, err := ingest.LoadCurriculum(filepath.Base(path), data)
	if err != nil {
		return err
	}

	examType := v.GetString("exam-type")
	sel := selection.SmartFilter(examType, cur)

	return withOutput(v.GetString("output"), func(w io.Writer) error {
		fmt.Fprintf(w, "%s: %d/%d lessons, %d periods\n", examType, sel.Len(), len(cur.LessonIDs()), cur.SelectedPeriods(sel.Has))
		for _, ch := range cur.SelectedChapters(sel.Has) {
			fmt.Fprintf(w, "%s\n", ch.Name)
			for _, l := range ch.Lessons {
				fmt.Fprintf(w, "  - %s (%d, weeks %d-%d)\n", l.Name, l.Periods, l.StartWeek(), l.EndWeek())
			}
		}
		return nil
	})
}

func runHistory(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hist, err := db.History(context.Background(), v.GetInt("limit"))
	if err != nil {
		return fmt.Errorf("export history: %w", err)
	}

	data, err := json.MarshalIndent(hist, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	return withOutput(v.GetString("output"), func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		// Ensure trailing newline.
		_, _ = fmt.Fprintln(w)
		return nil
	})
}

func withOutput(path string, fn func(io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()
	return fn(f)
}
