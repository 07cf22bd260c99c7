package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/gradekit/gradekit/internal/grading"
	"github.com/gradekit/gradekit/internal/handler"
	appI18n "github.com/gradekit/gradekit/internal/i18n"
	"github.com/gradekit/gradekit/internal/llm"
	"github.com/gradekit/gradekit/internal/model"
	"github.com/gradekit/gradekit/internal/sandbox"
	"github.com/gradekit/gradekit/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradekit",
		Short: "Automated quiz grading engine",
	}

	serve := serveCmd()
	root.AddCommand(serve, gradeCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `gradekit --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("db", "gradekit.db", "Database path (sqlite) or DSN (postgres)")
	f.String("jwt-secret", "", "HMAC secret for API tokens (or set GRADEKIT_JWT_SECRET)")
	f.String("admin-password", "", "Initial admin password (or set GRADEKIT_ADMIN_PASSWORD)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	addGradingFlags(f)
	addLogFlags(f)
	return cmd
}

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a quiz file against a responses file",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.StringP("quiz", "q", "", "Quiz file, JSON or YAML (required)")
	f.StringP("responses", "r", "", "Responses file, JSON or YAML (required)")
	f.Bool("parallel", false, "Grade slow question types concurrently")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addGradingFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("quiz")
	_ = cmd.MarkFlagRequired("responses")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored grading results as CSV or JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("db", "gradekit.db", "Database path (sqlite) or DSN (postgres)")
	f.String("quiz-id", "", "Restrict export to one quiz (empty = all)")
	f.String("format", "csv", "Output format (csv, json)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func addGradingFlags(f *pflag.FlagSet) {
	f.String("policy", string(grading.DefaultPolicy), "Grading policy (strict, balanced, lenient)")
	f.String("llm-provider", "openai", "LLM provider (openai, gemini, none)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("interpreter", "python3", "Interpreter for code test execution")
	f.Float64("fuzzy-threshold", grading.DefaultFuzzyThreshold, "Similarity cutoff for fuzzy option matching")
	f.Float64("choice-confidence", grading.DefaultChoiceConfidence, "Confidence cutoff for LLM answer disambiguation")
	f.Int("workers", grading.DefaultWorkers, "Worker pool size for parallel grading")
	f.String("lang", "en", "Feedback language (en, ru)")
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

	v.SetEnvPrefix("GRADEKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gradekit")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gradekit")
	v.AddConfigPath("/etc/gradekit")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func newLLMClient(ctx context.Context, v *viper.Viper) (llm.Client, error) {
	switch strings.ToLower(v.GetString("llm-provider")) {
	case "none", "":
		return nil, nil
	case "gemini":
		return llm.NewGemini(v.GetString("llm-key"), v.GetString("llm-model")), nil
	case "openai":
		client := llm.NewOpenAI(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
		if err := client.Ping(ctx); err != nil {
			return nil, fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm-provider %q", v.GetString("llm-provider"))
	}
}

func newEngine(ctx context.Context, v *viper.Viper) (*grading.Engine, error) {
	client, err := newLLMClient(ctx, v)
	if err != nil {
		return nil, err
	}
	if client == nil {
		slog.Warn("no LLM provider configured, free-text grading degrades to heuristics")
	}

	policy, ok := grading.ParsePolicy(v.GetString("policy"))
	if !ok {
		slog.Warn("unknown policy, using default", "policy", v.GetString("policy"))
	}

	opts := []grading.Option{
		grading.WithPolicy(policy),
		grading.WithRunner(sandbox.New(sandbox.WithInterpreter(v.GetString("interpreter")))),
		grading.WithFuzzyThreshold(v.GetFloat64("fuzzy-threshold")),
		grading.WithChoiceConfidence(v.GetFloat64("choice-confidence")),
		grading.WithWorkers(v.GetInt("workers")),
	}
	if client != nil {
		opts = append(opts, grading.WithClient(client))
	}
	return grading.New(opts...), nil
}

func openStore(ctx context.Context, v *viper.Viper) (*store.Store, error) {
	db, err := store.Open(ctx, store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	engine, err := newEngine(ctx, v)
	if err != nil {
		return err
	}

	secret := v.GetString("jwt-secret")
	if secret == "" {
		return fmt.Errorf("jwt secret is required: set --jwt-secret flag or GRADEKIT_JWT_SECRET env var")
	}

	h := handler.New(db, engine, handler.Config{JWTSecret: secret})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"llm_provider", v.GetString("llm-provider"),
		"policy", v.GetString("policy"),
		"lang", lang,
	)
	return http.ListenAndServe(addr, r)
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var quiz model.Quiz
	if err := loadDoc(v.GetString("quiz"), &quiz); err != nil {
		return fmt.Errorf("load quiz: %w", err)
	}
	var responses model.ResponseSet
	if err := loadDoc(v.GetString("responses"), &responses); err != nil {
		return fmt.Errorf("load responses: %w", err)
	}

	engine, err := newEngine(ctx, v)
	if err != nil {
		return err
	}

	var report model.Report
	if v.GetBool("parallel") {
		report = engine.GradeQuizParallel(ctx, quiz, responses, v.GetString("policy"), nil, v.GetInt("workers"))
	} else {
		report = engine.GradeQuiz(ctx, quiz, responses, v.GetString("policy"), nil)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeOutput(v.GetString("output"), append(data, '\n'))
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.ExportResults(ctx, v.GetString("quiz-id"))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	switch strings.ToLower(v.GetString("format")) {
	case "json":
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		return writeOutput(v.GetString("output"), append(data, '\n'))
	case "csv":
		var sb strings.Builder
		cw := csv.NewWriter(&sb)
		_ = cw.Write([]string{
			"report_id", "quiz_id", "quiz_title", "policy", "question_id",
			"type", "score", "max_score", "verdict", "feedback", "created_at",
		})
		for _, row := range rows {
			_ = cw.Write([]string{
				row.ReportID, row.QuizID, row.QuizTitle, row.Policy, row.QuestionID,
				row.Type,
				strconv.FormatFloat(row.Score, 'f', -1, 64),
				strconv.FormatFloat(row.MaxScore, 'f', -1, 64),
				row.Verdict, row.Feedback,
				row.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return fmt.Errorf("write CSV: %w", err)
		}
		return writeOutput(v.GetString("output"), []byte(sb.String()))
	default:
		return fmt.Errorf("unknown format %q", v.GetString("format"))
	}
}

// loadDoc reads a JSON or YAML document depending on file extension.
func loadDoc(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	default:
		return json.Unmarshal(data, out)
	}
}

func writeOutput(path string, data []byte) error {
	var w io.Writer
	if path == "" || path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	_, err := w.Write(data)
	return err
}

func seedAdmin(ctx context.Context, db *store.Store, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or GRADEKIT_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(ctx, model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
