package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"productstudio/core"
)

// serviceName is the name registered with the service manager.
const serviceName = "productstudio"

// serviceStopTimeout bounds how long Stop waits for the graceful shutdown.
const serviceStopTimeout = 90 * time.Second

// Program runs the studio under the platform service manager (systemd,
// launchd or the Windows SCM).
type Program struct {
	mu       sync.Mutex
	app      *App
	exit     chan struct{}
	stopping bool

	// exitProcess is called when the app stops without Stop being called,
	// so the service manager sees the failure and can restart us.
	exitProcess func(code int)
}

// Start bootstraps the app and serves in the background.
func (p *Program) Start(s service.Service) error {
	app, _, code := bootstrap(context.Background())
	if app == nil {
		return fmt.Errorf("product studio failed to start (exit code %d)", code)
	}

	p.mu.Lock()
	p.app = app
	p.exit = make(chan struct{})
	p.stopping = false
	if p.exitProcess == nil {
		p.exitProcess = os.Exit
	}
	p.mu.Unlock()

	go p.run(app)
	return nil
}

func (p *Program) run(app *App) {
	err := app.Run(false)
	close(p.exit)

	p.mu.Lock()
	stopping := p.stopping
	p.mu.Unlock()
	if stopping {
		return
	}

	code := core.ExitCodeSuccess
	if err != nil {
		app.logger.Error("Product studio stopped unexpectedly", zap.Error(err))
		code = core.ExitCodeError
	}
	p.exitProcess(code)
}

// Stop starts the graceful shutdown and waits for it.
func (p *Program) Stop(s service.Service) error {
	p.mu.Lock()
	app, exit := p.app, p.exit
	p.stopping = true
	p.mu.Unlock()

	if app == nil {
		return nil
	}
	app.Stop()

	select {
	case <-exit:
		return nil
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// ServiceConfig returns the service definition. The installed service runs
// the binary with the "run" command from the binary's directory, where the
// .env file is expected.
func ServiceConfig() *service.Config {
	cfg := &service.Config{
		Name:        serviceName,
		DisplayName: "Product Studio",
		Description: "Token-metered product photo generation studio",
		Arguments:   []string{"run"},
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
	if exe, err := os.Executable(); err == nil {
		cfg.WorkingDirectory = filepath.Dir(exe)
	}
	return cfg
}

// controller is the part of service.Service the management commands use.
type controller interface {
	Install() error
	Uninstall() error
	Start() error
	Stop() error
	Restart() error
	Status() (service.Status, error)
	Run() error
}

func newController() (controller, error) {
	s, err := service.New(&Program{}, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// PrintServiceUsage prints the help/usage information for service commands.
func PrintServiceUsage(w io.Writer) {
	fmt.Fprintln(w, "Product Studio")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Usage: %s [command]\n", serviceName)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  install    Install the studio as a system service")
	fmt.Fprintln(w, "  uninstall  Remove the system service (alias: remove)")
	fmt.Fprintln(w, "  start      Start the system service")
	fmt.Fprintln(w, "  stop       Stop the system service")
	fmt.Fprintln(w, "  restart    Restart the system service")
	fmt.Fprintln(w, "  status     Show the current service status")
	fmt.Fprintln(w, "  run        Run under the service manager")
	fmt.Fprintln(w, "  help       Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run without arguments to serve in the foreground.")
}

// HandleServiceCommand handles service-related command-line arguments.
// Returns true if a command was handled; on failure the process exits.
func HandleServiceCommand(args []string) bool {
	handled, err := handleServiceCommand(args, os.Stdout, newController)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	return handled
}

func handleServiceCommand(args []string, out io.Writer, newSvc func() (controller, error)) (bool, error) {
	if len(args) < 2 {
		return false, nil
	}

	type action struct {
		fn   func(controller) error
		done string
	}
	actions := map[string]action{
		"install":   {controller.Install, "Service installed successfully"},
		"uninstall": {controller.Uninstall, "Service uninstalled successfully"},
		"remove":    {controller.Uninstall, "Service uninstalled successfully"},
		"start":     {controller.Start, "Service started successfully"},
		"stop":      {controller.Stop, "Service stopped successfully"},
		"restart":   {controller.Restart, "Service restarted successfully"},
	}

	cmd := args[1]
	switch cmd {
	case "help", "-h", "--help", "-help":
		PrintServiceUsage(out)
		return true, nil
	case "status", "run":
	default:
		if _, ok := actions[cmd]; !ok {
			return false, nil
		}
	}

	s, err := newSvc()
	if err != nil {
		return true, err
	}

	switch cmd {
	case "run":
		if err := s.Run(); err != nil {
			return true, fmt.Errorf("service run failed: %w", err)
		}
		return true, nil
	case "status":
		status, err := s.Status()
		if err != nil {
			return true, fmt.Errorf("failed to get service status: %w", err)
		}
		fmt.Fprintln(out, describeStatus(status))
		return true, nil
	}

	a := actions[cmd]
	if err := a.fn(s); err != nil {
		return true, fmt.Errorf("failed to %s service: %w", cmd, err)
	}
	fmt.Fprintln(out, a.done)
	return true, nil
}

func describeStatus(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}
