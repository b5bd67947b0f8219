package router

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/FormFox/app/repository"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Options configure the routers.
type Options struct {
	Repos *repository.Repositories
	// LimiterStorage backs the public form limiter; nil keeps the counters in memory.
	LimiterStorage fiber.Storage
	// ApplyLimit is the number of form posts allowed per client and minute.
	ApplyLimit int
}

func InstallRouter(app *fiber.App, opts Options) error {
	if opts.Repos == nil {
		r, err := repository.GetGlobalRepositories()
		if err != nil {
			return fmt.Errorf("router: %w", err)
		}
		opts.Repos = r
	}
	if opts.ApplyLimit <= 0 {
		opts.ApplyLimit = defaultApplyLimit
	}
	// Install HttpRouter first to initialize the session store and the
	// global UserContext middleware. The API routes depend on it.
	setup(app, NewHttpRouter(opts), NewApiRouter(opts))
	return nil
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
