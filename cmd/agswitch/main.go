// agswitch keeps several Google accounts for the Antigravity IDE and
// switches the IDE between them by rewriting its local login state.
//
// Usage:
//
//	agswitch [flags] [serve]          run the local command API (default)
//	agswitch [flags] login            sign in a new account in the browser
//	agswitch [flags] code <code>      finish a login from a pasted code
//	agswitch [flags] list             list accounts with quota
//	agswitch [flags] switch <id|email>
//	agswitch [flags] export [file]
//	agswitch [flags] import <file>
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"

	"github.com/pysugar/antigravity-switch/internal/accounts"
	"github.com/pysugar/antigravity-switch/internal/api"
	"github.com/pysugar/antigravity-switch/internal/api/handlers"
	"github.com/pysugar/antigravity-switch/internal/auth/google"
	"github.com/pysugar/antigravity-switch/internal/auth/token"
	"github.com/pysugar/antigravity-switch/internal/config"
	"github.com/pysugar/antigravity-switch/internal/db"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/discovery"
	"github.com/pysugar/antigravity-switch/internal/quota"
	"github.com/pysugar/antigravity-switch/internal/switcher"
	"github.com/pysugar/antigravity-switch/internal/target"
	"github.com/pysugar/antigravity-switch/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	store    *accounts.Store
	google   *google.Client
	tokens   *token.Manager
	injector *db.Injector
	switcher *switcher.Switcher
	quota    *quota.Service
	login    *google.LoginFlow
	scanner  *discovery.Scanner
}

func run(args []string) error {
	var (
		dataDir     string
		addr        string
		stateDB     string
		executable  string
		noBrowser   bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("agswitch", pflag.ContinueOnError)
	flagSet.StringVar(&dataDir, "data-dir", "", "directory holding accounts.json (default ~/.antigravity-manager)")
	flagSet.StringVar(&addr, "addr", "", "listen address for the command API (default 127.0.0.1:3848)")
	flagSet.StringVar(&stateDB, "state-db", "", "path to Antigravity's state.vscdb")
	flagSet.StringVar(&executable, "executable", "", "command used to relaunch Antigravity")
	flagSet.BoolVar(&noBrowser, "no-browser", false, "print the login URL instead of opening a browser")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("agswitch %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		return nil
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.APIAddr = addr
	}
	if stateDB != "" {
		cfg.StateDBPath = stateDB
	}
	if executable != "" {
		cfg.Executable = executable
	}
	if noBrowser {
		cfg.OpenBrowser = false
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	rest := flagSet.Args()
	command := "serve"
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return a.serve(ctx)
	case "login":
		return a.runLogin(ctx)
	case "code":
		if len(rest) != 1 {
			return errors.New("usage: agswitch code <authorization-code>")
		}
		acc, err := a.login.CompleteWithCode(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("Added %s (%s)\n", acc.Email, acc.ID)
		return nil
	case "list":
		return a.list(ctx)
	case "switch":
		if len(rest) != 1 {
			return errors.New("usage: agswitch switch <id|email>")
		}
		return a.switchTo(ctx, rest[0])
	case "export":
		return a.export(rest)
	case "import":
		if len(rest) != 1 {
			return errors.New("usage: agswitch import <file>")
		}
		return a.importFile(rest[0])
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newApp(cfg *config.Config) (*app, error) {
	creds, err := google.ResolveCredentials(
		google.Credentials{ClientID: version.ClientID, ClientSecret: version.ClientSecret},
		google.Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret},
	)
	if err != nil {
		// Switching cached accounts still works; login and refresh report
		// the missing configuration when used.
		log.Printf("⚠️ %v", err)
	}

	googleClient := google.NewClient(google.Config{
		Credentials: creds,
		RedirectURL: cfg.RedirectURL(),
	})

	controller, err := target.NewProcess(target.Options{
		Executable:  cfg.Executable,
		StateDBPath: cfg.StateDBPath,
	})
	if err != nil {
		return nil, err
	}

	store := accounts.NewStore(cfg.AccountsPath())
	tokens := token.NewManager(store, googleClient)
	injector := db.NewInjector(controller.StateDBPath())

	return &app{
		cfg:      cfg,
		store:    store,
		google:   googleClient,
		tokens:   tokens,
		injector: injector,
		switcher: switcher.New(store, tokens, controller, injector),
		quota:    quota.NewService(store, tokens, quota.NewClient(cfg.QuotaBaseURL, nil)),
		login: google.NewLoginFlow(googleClient, store, google.LoginOptions{
			CallbackAddr: cfg.CallbackAddr,
			CallbackPath: cfg.CallbackPath,
			OpenBrowser:  cfg.OpenBrowser,
		}),
		scanner: discovery.NewScanner(""),
	}, nil
}

func (a *app) serve(ctx context.Context) error {
	oauthHandlers := handlers.NewOAuthHandlers(a.login)
	defer oauthHandlers.Close()

	srv := &http.Server{
		Addr: a.cfg.APIAddr,
		Handler: api.NewRouter(api.Deps{
			Store:     a.store,
			Refresher: a.google,
			Tokens:    a.tokens,
			Quota:     a.quota,
			Switcher:  a.switcher,
			IDEStatus: a.injector,
			OAuth:     oauthHandlers,
			Scanner:   a.scanner,
			DataDir:   a.cfg.DataDir,
			APIToken:  a.cfg.APIToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 agswitch %s listening on http://%s", version.Version, a.cfg.APIAddr)
		log.Printf("📁 Data directory: %s", a.cfg.DataDir)
		log.Printf("🗄️ Antigravity state: %s", a.injector.Path())
		if a.cfg.APIToken != "" {
			log.Printf("🔒 API token required")
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) runLogin(ctx context.Context) error {
	pending, err := a.login.Begin(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Open this URL to sign in:\n\n  %s\n\n", pending.URL)

	acc, err := pending.Complete(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s (%s)\n", acc.Email, acc.ID)
	return nil
}

func (a *app) list(ctx context.Context) error {
	all, err := a.quota.All(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("No accounts. Run `agswitch login` to add one.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVE\tEMAIL\tID\tQUOTA")
	for _, aq := range all {
		active := ""
		if aq.IsActive {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", active, aq.Email, aq.ID, quotaSummary(aq))
	}
	return tw.Flush()
}

func quotaSummary(aq quota.AccountQuota) string {
	if aq.Error != "" {
		return "error: " + aq.Error
	}
	if aq.Quota == nil || len(aq.Quota.Models) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(aq.Quota.Models))
	for _, m := range aq.Quota.Models {
		parts = append(parts, fmt.Sprintf("%s %d%%", m.DisplayName, m.Percentage))
	}
	return strings.Join(parts, ", ")
}

func (a *app) switchTo(ctx context.Context, ref string) error {
	acc, err := a.resolve(ref)
	if err != nil {
		return err
	}

	res, err := a.switcher.Switch(ctx, acc.ID)
	if err != nil {
		return err
	}
	if res.Outcome != switcher.Success {
		return res.Cause
	}
	fmt.Printf("Switched Antigravity to %s\n", res.Email)
	return nil
}

// resolve finds an account by id or email.
func (a *app) resolve(ref string) (models.Account, error) {
	all, err := a.store.Load()
	if err != nil {
		return models.Account{}, err
	}
	for _, acc := range all {
		if acc.ID == ref || strings.EqualFold(acc.Email, ref) {
			return acc, nil
		}
	}
	return models.Account{}, fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, ref)
}

func (a *app) export(rest []string) error {
	data, err := a.store.Export()
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := atomic.WriteFile(rest[0], strings.NewReader(string(data))); err != nil {
		return err
	}
	return os.Chmod(rest[0], 0o600)
}

func (a *app) importFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	imported, err := handlers.ParseImport(data)
	if err != nil {
		return err
	}
	res, err := a.store.Import(imported)
	if err != nil {
		return err
	}
	fmt.Printf("Imported: %d added, %d updated, %d skipped\n", res.Added, res.Updated, res.Skipped)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `agswitch: switch the Antigravity IDE between Google accounts.

Usage:
  agswitch [flags] [command]

Commands:
  serve               run the local command API (default)
  login               sign in a new account in the browser
  code <code>         finish a login from a pasted authorization code
  list                list accounts with their quota
  switch <id|email>   restart Antigravity signed in as the account
  export [file]       write all accounts, tokens included, as JSON
  import <file>       merge accounts from an export

Flags:
`)
	flagSet.PrintDefaults()
}
