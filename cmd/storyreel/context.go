package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/services"
	"storyreel/internal/store"
	"storyreel/internal/workflow"
)

type commandContext struct {
	configFlag  *string
	sessionFlag *string
	jsonFlag    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	dependencies dependencyBuilder
}

type dependencyBuilder func(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) workflow.Dependencies

// newDependencies builds the collaborator set; tests replace it.
var newDependencies dependencyBuilder = buildDependencies

func newCommandContext(configFlag, sessionFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		sessionFlag:  sessionFlag,
		jsonFlag:     jsonFlag,
		dependencies: newDependencies,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was passed.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) sessionID() string {
	if c.sessionFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.sessionFlag)
}

func (c *commandContext) logger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

// withManager opens the store and a workflow manager on the selected
// session, runs fn, and tears both down. Each invocation carries its own
// request id through the context.
func (c *commandContext) withManager(cmd *cobra.Command, fn func(context.Context, *workflow.Manager) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.logger(cfg)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	mgr, err := workflow.NewManager(cfg, st, c.dependencies(cfg, logger, m), logger)
	if err != nil {
		return err
	}
	ctx := services.WithRequestID(commandCtx(cmd), uuid.NewString())
	if err := mgr.Open(ctx, c.sessionID()); err != nil {
		closeErr := mgr.Close()
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("session %s not found", c.sessionID())
		}
		return errors.Join(err, closeErr)
	}
	runErr := fn(ctx, mgr)
	if err := mgr.Close(); err != nil {
		logger.Warn("close workflow manager", logging.Error(err))
	}
	return runErr
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
