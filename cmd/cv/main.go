package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	_ "github.com/vanderheijden86/codeviz/internal/ttyguard"
	"github.com/vanderheijden86/codeviz/pkg/backend"
	"github.com/vanderheijden86/codeviz/pkg/config"
	"github.com/vanderheijden86/codeviz/pkg/debug"
	"github.com/vanderheijden86/codeviz/pkg/export"
	"github.com/vanderheijden86/codeviz/pkg/fetch"
	"github.com/vanderheijden86/codeviz/pkg/metrics"
	"github.com/vanderheijden86/codeviz/pkg/payload"
	"github.com/vanderheijden86/codeviz/pkg/selection"
	"github.com/vanderheijden86/codeviz/pkg/ui"
	"github.com/vanderheijden86/codeviz/pkg/version"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	configPath := flag.String("config", "", "Config file (default ~/.config/codeviz/config.yaml)")
	urlFlag := flag.String("url", "", "Backend URL (overrides config and CV_BACKEND_URL)")
	timeoutFlag := flag.Duration("timeout", 0, "Per-request backend timeout")
	categoryFlag := flag.String("category", "", "Initial category: comments or logs")
	extFlag := flag.String("ext", "", "Initial extension filter: *, py or java")
	dumpFlag := flag.Bool("dump", false, "Fetch once and print the selected document as JSON")
	hardFlag := flag.Bool("hard", false, "With --dump/--export, ask the backend to recompute first")
	exportFlag := flag.String("export", "", "Fetch once and write the selected chart to this .svg or .png file")
	wizardFlag := flag.Bool("export-wizard", false, "Choose a chart, format and output file interactively, then export it")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *help {
		fmt.Println("Usage: cv [options]")
		fmt.Println("\nA terminal viewer for codeviz code metrics.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("cv %s\n", version.Version)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	var (
		cfg config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		// Non-fatal: continue with defaults
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if cfg, err = cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// CLI flags override env vars, env vars override the config file.
	if *urlFlag != "" {
		cfg.Backend.URL = *urlFlag
	}
	if *timeoutFlag > 0 {
		cfg.Backend.Timeout = *timeoutFlag
	}
	if *categoryFlag != "" {
		cfg.UI.DefaultCategory = *categoryFlag
	}
	if *extFlag != "" {
		cfg.UI.DefaultExtension = *extFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.Debug.LogFile != "" {
		debug.SetOutputFile(cfg.Debug.LogFile)
		defer debug.Close()
	}

	sel, _ := cfg.Selection()
	client, err := backend.NewClient(cfg.Backend.URL, backend.WithTimeout(cfg.Backend.Timeout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	ctrl := fetch.NewController(client, payload.NewCache())

	if *wizardFlag {
		choices, err := export.NewWizard(sel, cfg.UI.ExportDir).Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Export cancelled: %v\n", err)
			os.Exit(1)
		}
		path, err := choices.OutputPath(time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		sel = choices.Selection()
		*exportFlag = path
	}

	headless := *dumpFlag || *exportFlag != "" || !term.IsTerminal(int(os.Stdout.Fd()))
	if headless {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := runHeadless(ctx, ctrl, sel, headlessOptions{Hard: *hardFlag, ExportPath: *exportFlag}, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	selModel, err := selection.New(sel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	m := ui.NewModel(ctrl, selModel,
		ui.WithBackendLabel(client.BaseURL()),
		ui.WithExportDir(cfg.UI.ExportDir),
	)
	defer func() { debug.Dump("metrics", metrics.Snapshot()) }()
	if err := runTUIProgram(m); err != nil {
		fmt.Printf("Error running codeviz: %v\n", err)
		os.Exit(1)
	}
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set CV_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("CV_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()

				select {
				case <-runDone:
					return
				case <-time.After(2 * time.Second):
				}

				p.Kill()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}
