package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/config"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/harga-pangan/console/internal/session"
	"github.com/harga-pangan/console/internal/storage"
	"github.com/harga-pangan/console/internal/workflow"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":       {"login -u USER -p PASS", runLogin},
		"logout":      {"logout", runLogout},
		"whoami":      {"whoami", runWhoami},
		"register":    {"register -u USER -p PASS [-admin]", runRegister},
		"upload":      {"upload -komoditas NAME FILE.csv", runUpload},
		"delete":      {"delete -komoditas NAME", runDelete},
		"preprocess":  {"preprocess [-train] [-wait]", runPreprocess},
		"train":       {"train [-komoditas NAME] [-wait]", runTrain},
		"status":      {"status [-wait]", runStatus},
		"predict":     {"predict -komoditas NAME [-days 3|7|30] [-json]", runPredict},
		"future":      {"future -komoditas NAME", runFuture},
		"history":     {"history", runHistory},
		"plots":       {"plots -komoditas NAME [-out DIR]", runPlots},
		"scrape":      {"scrape [-days N] [-yes]", runScrape},
		"data-status": {"data-status [-days N]", runDataStatus},
		"inspect":     {"inspect FILE.csv", runInspect},
	}
}

func main() {
	configPath := flag.String("config", config.FileName, "path to the YAML config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	ephemeral := flag.Bool("ephemeral", false, "keep the session in memory only")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	if err := config.LoadEnv(*envFile); err != nil {
		fatal(err)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatal(err)
	}
	logging.SetLevel(cfg.Logging.Level)

	a, err := newApp(cfg, *ephemeral)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fatal(err)
	}
}

type app struct {
	cfg      *config.AppConfig
	client   *apiclient.Client
	session  *session.Manager
	workflow *workflow.Controller
}

func newApp(cfg *config.AppConfig, ephemeral bool) (*app, error) {
	client := apiclient.New(cfg.Backend.BaseURL, apiclient.WithTimeout(cfg.Backend.Timeout))

	var kv storage.KV = storage.NewMemoryKV()
	if !ephemeral {
		fileKV, err := storage.NewFileKV(cfg.Storage.StateDirectory)
		if err != nil {
			return nil, fmt.Errorf("session storage: %w", err)
		}
		kv = fileKV
	}

	sess := session.NewManager(kv, client)
	client.SetTokenSource(sess)
	sess.Restore()

	wfCfg := workflow.DefaultConfig()
	wfCfg.PollInterval = cfg.Workflow.PollInterval
	wfCfg.RequestTimeout = cfg.Workflow.RequestTimeout
	wfCfg.AutoPreprocess = cfg.Workflow.AutoPreprocess
	wfCfg.AutoTrain = cfg.Workflow.AutoTrain

	return &app{
		cfg:      cfg,
		client:   client,
		session:  sess,
		workflow: workflow.NewController(client, sess, wfCfg),
	}, nil
}

// withWorkflow rebuilds the controller with different automation settings.
func (a *app) withWorkflow(autoPreprocess, autoTrain bool) {
	a.workflow.Close()
	wfCfg := workflow.DefaultConfig()
	wfCfg.PollInterval = a.cfg.Workflow.PollInterval
	wfCfg.RequestTimeout = a.cfg.Workflow.RequestTimeout
	wfCfg.AutoPreprocess = autoPreprocess
	wfCfg.AutoTrain = autoTrain
	a.workflow = workflow.NewController(a.client, a.session, wfCfg)
}

func (a *app) close() {
	a.workflow.Close()
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: pangan [-config FILE] [-env FILE] [-ephemeral] <command> [flags]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %s\n", apperr.UserMessage(err))
	os.Exit(1)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pangan %s\n", commands[name].usage)
		fs.PrintDefaults()
	}
	return fs
}

func requireArg(fs *flag.FlagSet, value, name string) error {
	if strings.TrimSpace(value) == "" {
		fs.Usage()
		return apperr.NewValidationError(name, fmt.Sprintf("-%s is required", name))
	}
	return nil
}
