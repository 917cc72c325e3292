package main

import (
	"context"
	"fmt"
	"time"

	"github.com/stackd-io/stackd"
	"github.com/stackd-io/stackd/pkg/client"
)

const defaultAPIURL = "http://127.0.0.1:8080/api"

// command binds the CLI handlers to the global flags. Each handler prefers a
// reachable daemon and falls back to acting directly from the config file;
// services keep running after the CLI exits either way.
type command struct {
	global *GlobalFlags
}

func (c command) apiClient(apiURL string, timeout time.Duration) *client.Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return client.New(client.Config{BaseURL: apiURL, Timeout: timeout})
}

// localSupervisor builds a supervisor directly from the config file for
// daemonless operation.
func (c command) localSupervisor() (*stackd.Supervisor, error) {
	cfg, err := stackd.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return nil, err
	}
	stackd.SetupLogging(cfg.Log)
	return stackd.NewFromConfig(cfg)
}

func (c command) Start(f ServiceFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout)
	defer cancel()
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		return api.Start(ctx, f.Name)
	}
	if f.APIUrl != "" {
		return fmt.Errorf("daemon not reachable at %s", f.APIUrl)
	}
	sup, err := c.localSupervisor()
	if err != nil {
		return err
	}
	defer sup.Close()
	return sup.Start(f.Name)
}

func (c command) Stop(f ServiceFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout)
	defer cancel()
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		return api.Stop(ctx, f.Name)
	}
	if f.APIUrl != "" {
		return fmt.Errorf("daemon not reachable at %s", f.APIUrl)
	}
	sup, err := c.localSupervisor()
	if err != nil {
		return err
	}
	defer sup.Close()
	return sup.Stop(f.Name)
}

func (c command) Restart(f ServiceFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout)
	defer cancel()
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		return api.Restart(ctx, f.Name)
	}
	if f.APIUrl != "" {
		return fmt.Errorf("daemon not reachable at %s", f.APIUrl)
	}
	sup, err := c.localSupervisor()
	if err != nil {
		return err
	}
	defer sup.Close()
	return sup.Restart(f.Name)
}

func (c command) Up(f StackFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout)
	defer cancel()
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		return api.StartAll(ctx)
	}
	if f.APIUrl != "" {
		return fmt.Errorf("daemon not reachable at %s", f.APIUrl)
	}
	sup, err := c.localSupervisor()
	if err != nil {
		return err
	}
	defer sup.Close()
	return sup.StartAll()
}

func (c command) Down(f StackFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout)
	defer cancel()
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		return api.StopAll(ctx)
	}
	if f.APIUrl != "" {
		return fmt.Errorf("daemon not reachable at %s", f.APIUrl)
	}
	sup, err := c.localSupervisor()
	if err != nil {
		return err
	}
	defer sup.Close()
	return sup.StopAll()
}

func (c command) RestartAll(f StackFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout)
	defer cancel()
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		return api.RestartAll(ctx)
	}
	if f.APIUrl != "" {
		return fmt.Errorf("daemon not reachable at %s", f.APIUrl)
	}
	sup, err := c.localSupervisor()
	if err != nil {
		return err
	}
	defer sup.Close()
	return sup.RestartAll()
}

func (c command) Status(f StatusFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.APITimeout)
	defer cancel()
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if api.IsReachable(ctx) {
		if f.Name != "" {
			st, err := api.Status(ctx, f.Name)
			if err != nil {
				return err
			}
			return printJSON(st)
		}
		sts, err := api.StatusAll(ctx)
		if err != nil {
			return err
		}
		return printJSON(sts)
	}
	if f.APIUrl != "" {
		return fmt.Errorf("daemon not reachable at %s", f.APIUrl)
	}
	sup, err := c.localSupervisor()
	if err != nil {
		return err
	}
	defer sup.Close()
	if f.Name != "" {
		st, err := sup.Status(f.Name)
		if err != nil {
			return err
		}
		return printJSON(st)
	}
	return printJSON(sup.StatusAll())
}
