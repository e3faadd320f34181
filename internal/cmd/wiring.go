package cmd

import (
	log "github.com/sirupsen/logrus"

	"github.com/adamancini/autodeploy/internal/agent"
	"github.com/adamancini/autodeploy/internal/config"
	"github.com/adamancini/autodeploy/internal/deploy"
	"github.com/adamancini/autodeploy/internal/destination"
	"github.com/adamancini/autodeploy/internal/host"
	"github.com/adamancini/autodeploy/internal/interactive"
	"github.com/adamancini/autodeploy/internal/logging"
	"github.com/adamancini/autodeploy/internal/manifest"
	"github.com/adamancini/autodeploy/internal/platform"
	"github.com/adamancini/autodeploy/internal/registry"
	"github.com/adamancini/autodeploy/internal/stage"
	"github.com/adamancini/autodeploy/internal/transport"
	"github.com/adamancini/autodeploy/internal/update"
)

// loadConfig finds and loads the agent config and initializes logging from it.
func loadConfig() (*config.Config, error) {
	path, err := config.Find(configPath)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	switch {
	case logLevel != "":
		level = logLevel
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	if err := logging.Init(level, cfg.Log.File); err != nil {
		return nil, err
	}

	log.Debugf("using config %s", path)
	return cfg, nil
}

// newSource builds the registry source for cfg.
func newSource(cfg *config.Config) (*registry.Source, destination.Roots, error) {
	roots, err := cfg.DestinationRoots()
	if err != nil {
		return nil, destination.Roots{}, err
	}
	return registry.NewSource(cfg.Registry, roots, cfg.TransportOptions()), roots, nil
}

// wiring is the fully wired agent and the pieces that need closing.
type wiring struct {
	source       *registry.Source
	orchestrator *deploy.Orchestrator
	dispatcher   *host.Dispatcher
	agent        *agent.Agent
}

func (w *wiring) Close() {
	w.dispatcher.Close()
}

// newWiring wires the host integration, the update engine, the staged executor and
// the orchestrator behind an agent.
func newWiring(cfg *config.Config, noMonitor bool) (*wiring, error) {
	source, _, err := newSource(cfg)
	if err != nil {
		return nil, err
	}

	runner := &host.DefaultCommandRunner{}
	commands := host.NewCommandHost(cfg.HostCommands(), runner)
	dispatcher := host.NewDispatcher()
	controller := host.NewController(dispatcher, commands, commands, commands)

	activity := host.AnyActive{}
	if commands.CanProbe() {
		activity = append(activity, controller.Probe(commands))
	}
	if cfg.Host.Process != "" {
		activity = append(activity, host.NewProcessProbe(cfg.Host.Process))
	}

	notifier := interactive.ForMode(cfg.NotifyMode())
	engine := update.NewEngine(notifier, activity)

	store := manifest.NewLocalStore()
	transportOpts := cfg.TransportOptions()
	executor := stage.NewExecutor(controller, store, func(fh manifest.FileHost) (transport.Downloader, error) {
		return transport.ForHost(fh, transportOpts)
	})

	orchestrator := deploy.NewOrchestrator(deploy.Options{
		Executor: executor,
		Engine:   engine,
		Notifier: notifier,
		Closer:   controller,
		Probe: platform.NewProbe(platform.Options{
			HostExecutable: cfg.Host.Executable,
			HostProcess:    cfg.Host.Process,
			Runner:         runner,
		}),
		Store: store,
	})

	a := agent.New(agent.Options{
		Source:    source,
		Processor: orchestrator,
		Host:      controller,
		Monitor:   cfg.MonitorOptions(),
		NoMonitor: noMonitor,
	})

	return &wiring{
		source:       source,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		agent:        a,
	}, nil
}

// newProbe builds the platform probe used by read-only commands.
func newProbe(cfg *config.Config) platform.SystemProbe {
	return platform.NewProbe(platform.Options{
		HostExecutable: cfg.Host.Executable,
		HostProcess:    cfg.Host.Process,
		Runner:         &host.DefaultCommandRunner{},
	})
}
