package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/tutor/internal/grading"
	"github.com/pavelanni/tutor/internal/handler"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/problemgen"
	"github.com/pavelanni/tutor/internal/recordstore"
	"github.com/pavelanni/tutor/internal/selector"
	"github.com/pavelanni/tutor/internal/store"
	"github.com/pavelanni/tutor/internal/tutor"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Adaptive English tutoring server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), importCmd(), generateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringSliceP("problems", "p", nil, "Problem bank JSON files to import at startup (repeatable)")
	f.StringP("lang", "l", "en", "Language for messages and feedback (en, ko)")
	f.IntP("num-problems", "n", tutor.DefaultNumProblems, "Default number of problems per exam session")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /tutor)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (empty disables CORS)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.String("admin-password", "", "Initial admin password (or set TUTOR_ADMIN_PASSWORD)")
	addSelectorFlags(f)
	addStorageFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export roster performance as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("teacher", "", "Export only this teacher's roster (username); empty exports every student")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStorageFlags(f)
	addLogFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import problem bank JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	addStorageFlags(f)
	addLogFlags(f)
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate new problems with the configured LLM",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.String("subject", "English", "Problem subject")
	f.String("grade", "", "Target grade")
	f.String("type", string(model.ProblemObjective), "Problem type (objective, short_answer)")
	f.String("difficulty", string(model.DifficultyMedium), "Difficulty (easy, medium, hard)")
	f.StringSliceP("keywords", "k", nil, "Keywords the problems should test")
	f.IntP("count", "c", 5, "Number of problems to request")
	f.Bool("save", false, "Store the generated problems in the problem bank")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addStorageFlags(f)
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func addStorageFlags(f *pflag.FlagSet) {
	f.String("db", "tutor.db", "SQLite database path")
	f.String("records", "sqlite", "Record store backend (sqlite, memory, redis)")
	f.String("redis-addr", "localhost:6379", "Redis address for --records=redis")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.String("redis-prefix", "tutor", "Key prefix for records in Redis")
}

func addLLMFlags(f *pflag.FlagSet) {
	def := llm.DefaultConfig()
	f.String("llm-provider", def.Provider, "LLM provider (openai, gemini, anthropic, none)")
	f.String("llm-url", def.OpenAI.BaseURL, "OpenAI-compatible API base URL")
	f.String("llm-key", def.OpenAI.APIKey, "API key for the OpenAI-compatible provider")
	f.String("llm-model", def.OpenAI.Model, "Model for the OpenAI-compatible provider")
	f.Bool("llm-strict-schema", false, "Send JSON schemas as strict response formats (OpenAI only)")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", def.Gemini.Model, "Gemini model")
	f.String("anthropic-key", "", "Anthropic API key")
	f.String("anthropic-model", def.Anthropic.Model, "Anthropic model")
	f.Duration("llm-timeout", def.Timeout, "Timeout for one LLM request including retries")
	f.Int("llm-retries", def.Retry.MaxAttempts, "Maximum attempts per LLM request")
}

func addSelectorFlags(f *pflag.FlagSet) {
	def := selector.DefaultConfig()
	f.Int("selector-min-keywords", def.MinKeywords, "Keywords with data needed to leave cold start")
	f.Int("selector-min-seasoned-keywords", def.MinSeasonedKeywords, "Keywords with enough attempts needed to leave cold start")
	f.Int("selector-seasoned-attempts", def.SeasonedAttempts, "Attempts that make a keyword seasoned")
	f.Float64("selector-weighted-probability", def.WeightedProbability, "Chance of a weakness-weighted draw in steady state")
	f.Float64("selector-weight-floor", def.WeightFloor, "Minimum weight of an attempted keyword")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutor")
	v.AddConfigPath("/etc/tutor")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func selectorConfig(v *viper.Viper) (selector.Config, error) {
	cfg := selector.Config{
		MinKeywords:         v.GetInt("selector-min-keywords"),
		MinSeasonedKeywords: v.GetInt("selector-min-seasoned-keywords"),
		SeasonedAttempts:    v.GetInt("selector-seasoned-attempts"),
		WeightedProbability: v.GetFloat64("selector-weighted-probability"),
		WeightFloor:         v.GetFloat64("selector-weight-floor"),
	}
	return cfg, cfg.Validate()
}

func llmConfig(v *viper.Viper) llm.Config {
	cfg := llm.DefaultConfig()
	cfg.Provider = strings.ToLower(strings.TrimSpace(v.GetString("llm-provider")))
	cfg.OpenAI = llm.OpenAIConfig{
		APIKey:       v.GetString("llm-key"),
		Model:        v.GetString("llm-model"),
		BaseURL:      v.GetString("llm-url"),
		StrictSchema: v.GetBool("llm-strict-schema"),
	}
	cfg.Gemini = llm.GeminiConfig{APIKey: v.GetString("gemini-key"), Model: v.GetString("gemini-model")}
	cfg.Anthropic = llm.AnthropicConfig{APIKey: v.GetString("anthropic-key"), Model: v.GetString("anthropic-model")}
	cfg.Timeout = v.GetDuration("llm-timeout")
	if n := v.GetInt("llm-retries"); n > 0 {
		cfg.Retry.MaxAttempts = n
	}
	return cfg
}

// openRecords returns the record store selected by --records. The SQLite
// backend shares db and is closed with it.
func openRecords(ctx context.Context, v *viper.Viper, db *store.Store) (recordstore.Store, func(), error) {
	switch backend := strings.ToLower(v.GetString("records")); backend {
	case "", "sqlite":
		return db, func() {}, nil
	case "memory":
		slog.Warn("using in-memory record store; answers, weaknesses and problems are lost on exit")
		mem := recordstore.NewMemory()
		return mem, func() { _ = mem.Close() }, nil
	case "redis":
		r, err := recordstore.NewRedis(ctx,
			v.GetString("redis-addr"),
			v.GetString("redis-password"),
			v.GetInt("redis-db"),
			v.GetString("redis-prefix"),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		slog.Info("using redis record store", "addr", v.GetString("redis-addr"))
		return r, func() { _ = r.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown record store backend %q", backend)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired login sessions", "count", n)
	}

	records, closeRecords, err := openRecords(ctx, v, db)
	if err != nil {
		return err
	}
	defer closeRecords()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	selCfg, err := selectorConfig(v)
	if err != nil {
		return fmt.Errorf("selector config: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}

	llmCfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, llmCfg)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}

	var (
		grader    *grading.Grader
		generator *problemgen.Generator
	)
	if provider == nil {
		slog.Warn("no LLM configured; answers are graded by exact match")
		grader = grading.New(nil)
	} else {
		client, err := llm.New(provider, promptVariant, llmCfg.Timeout)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		grader = grading.New(client)
		generator = problemgen.New(provider)
	}

	svc := tutor.New(db, records, grader, tutor.Options{
		Selector:    selCfg,
		NumProblems: v.GetInt("num-problems"),
	})
	if err := importFiles(ctx, svc, db, v.GetStringSlice("problems")); err != nil {
		return fmt.Errorf("load problems: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.Config{
		NumProblems:   v.GetInt("num-problems"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		PromptVariant: promptVariant,
		Lang:          lang,
	}
	h := handler.New(db, svc, generator, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"X-CSRF-Token", "X-Outcome"},
			AllowCredentials: true,
		}).Handler)
	}
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"llm_provider", llmCfg.Provider,
		"records", v.GetString("records"),
		"lang", lang,
		"num_problems", cfg.NumProblems,
		"prompt_variant", promptVariant,
		"base_path", basePath,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	records, closeRecords, err := openRecords(ctx, v, db)
	if err != nil {
		return err
	}
	defer closeRecords()

	var (
		teacherName string
		teacherID   *int64
	)
	if username := v.GetString("teacher"); username != "" {
		teacher, err := db.GetUserByUsername(username)
		if err != nil {
			return fmt.Errorf("get teacher: %w", err)
		}
		if teacher == nil || teacher.Role != model.UserRoleTeacher {
			return fmt.Errorf("no teacher named %q", username)
		}
		teacherName, teacherID = teacher.DisplayName, &teacher.ID
	}
	students, err := db.ListStudents(teacherID)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}

	svc := tutor.New(db, records, grading.New(nil), tutor.Options{})
	export, outcome := svc.ExportReport(ctx, teacherName, students)
	if outcome != model.OutcomeOK {
		slog.Warn("export is incomplete", "outcome", outcome)
	}
	return writeJSONOutput(v.GetString("output"), export)
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	records, closeRecords, err := openRecords(ctx, v, db)
	if err != nil {
		return err
	}
	defer closeRecords()

	svc := tutor.New(db, records, grading.New(nil), tutor.Options{})
	return importFiles(ctx, svc, db, args)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	llmCfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, llmCfg)
	if err != nil {
		return fmt.Errorf("create LLM provider: %w", err)
	}
	if provider == nil {
		return errors.New("problem generation needs an LLM provider; --llm-provider=none is set")
	}

	spec := problemgen.Spec{
		Subject:    v.GetString("subject"),
		Grade:      v.GetString("grade"),
		Type:       model.ProblemType(v.GetString("type")),
		Difficulty: model.Difficulty(v.GetString("difficulty")),
		Keywords:   v.GetStringSlice("keywords"),
		Count:      v.GetInt("count"),
	}
	genCtx, cancel := context.WithTimeout(ctx, llmCfg.Timeout)
	defer cancel()
	problems, err := problemgen.New(provider).Generate(genCtx, spec)
	if err != nil {
		return err
	}

	if v.GetBool("save") {
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		records, closeRecords, err := openRecords(ctx, v, db)
		if err != nil {
			return err
		}
		defer closeRecords()

		svc := tutor.New(db, records, grading.New(nil), tutor.Options{})
		n, err := svc.ImportProblems(ctx, problems)
		if err != nil {
			return fmt.Errorf("save problems: %w", err)
		}
		slog.Info("saved generated problems", "count", n)
	}
	return writeJSONOutput(v.GetString("output"), problems)
}

func importFiles(ctx context.Context, svc *tutor.Service, ledger tutor.ImportLedger, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := svc.ImportFile(ctx, ledger, filepath.Base(path), data); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or TUTOR_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
