package host

import (
	"context"
)

// Controller routes host operations through a Dispatcher.
type Controller struct {
	dispatcher *Dispatcher
	loader     Loader
	installer  Installer
	closer     Closer
}

// NewController creates a controller. All calls run on dispatcher.
func NewController(dispatcher *Dispatcher, loader Loader, installer Installer, closer Closer) *Controller {
	return &Controller{
		dispatcher: dispatcher,
		loader:     loader,
		installer:  installer,
		closer:     closer,
	}
}

// Activate installs the artifact when install is set, otherwise loads it.
func (c *Controller) Activate(ctx context.Context, title, path string, install bool) error {
	return c.dispatcher.Do(ctx, func() error {
		if install {
			return c.installer.Install(title, path)
		}
		return c.loader.Load(path)
	})
}

// Deactivate uninstalls the artifact when install is set, otherwise unloads it.
func (c *Controller) Deactivate(ctx context.Context, title, path string, install bool) error {
	return c.dispatcher.Do(ctx, func() error {
		if install {
			return c.installer.Uninstall(title, path)
		}
		return c.loader.Unload(path)
	})
}

// CloseHost asks the host application to exit.
func (c *Controller) CloseHost(ctx context.Context) error {
	return c.dispatcher.Do(ctx, c.closer.Close)
}

// Prober reports whether the host has an artifact loaded or installed.
type Prober interface {
	IsActive(title, path string) (bool, error)
}

// Probe wraps prober so every query runs on the dispatcher.
func (c *Controller) Probe(prober Prober) Prober {
	return dispatchedProbe{dispatcher: c.dispatcher, prober: prober}
}

type dispatchedProbe struct {
	dispatcher *Dispatcher
	prober     Prober
}

func (p dispatchedProbe) IsActive(title, path string) (bool, error) {
	var active bool
	err := p.dispatcher.Do(context.Background(), func() error {
		var err error
		active, err = p.prober.IsActive(title, path)
		return err
	})
	return active, err
}
