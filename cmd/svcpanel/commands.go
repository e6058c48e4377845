package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/loykin/svcpanel/pkg/client"
)

// command binds the CLI verbs to the daemon API.
type command struct{}

func (c command) apiClient(f APIFlags) *client.Client {
	baseURL := f.APIUrl
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080/api"
	}
	return client.New(client.Config{BaseURL: baseURL, Timeout: f.APITimeout})
}

func (c command) reachable(f APIFlags) (*client.Client, context.Context, error) {
	api := c.apiClient(f)
	ctx := context.Background()
	if !api.IsReachable(ctx) {
		return nil, nil, fmt.Errorf("daemon not reachable - please start daemon first with 'svcpanel serve'")
	}
	return api, ctx, nil
}

func (c command) List(f APIFlags) error {
	api, ctx, err := c.reachable(f)
	if err != nil {
		return err
	}
	defs, err := api.Services(ctx)
	if err != nil {
		return err
	}
	printJSON(defs)
	return nil
}

func (c command) Status(f StatusFlags) error {
	api, ctx, err := c.reachable(f.APIFlags)
	if err != nil {
		return err
	}
	for {
		if err := c.printStatus(ctx, api, f.Name); err != nil {
			return err
		}
		if !f.Watch {
			return nil
		}
		time.Sleep(f.Interval)
	}
}

func (c command) printStatus(ctx context.Context, api *client.Client, name string) error {
	if name != "" {
		st, err := api.Status(ctx, name)
		if err != nil {
			return err
		}
		printJSON(st)
		return nil
	}
	sts, err := api.StatusAll(ctx)
	if err != nil {
		return err
	}
	printJSON(sts)
	return nil
}

func (c command) Start(f ServiceFlags) error {
	api, ctx, err := c.reachable(f.APIFlags)
	if err != nil {
		return err
	}
	st, err := api.Start(ctx, f.Name)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

func (c command) Stop(f ServiceFlags) error {
	api, ctx, err := c.reachable(f.APIFlags)
	if err != nil {
		return err
	}
	res, err := api.Stop(ctx, f.Name)
	if err != nil {
		return err
	}
	if res.Warning != "" {
		_, _ = fmt.Fprintln(os.Stderr, "warning:", res.Warning)
	}
	printJSON(res.Status)
	return nil
}

func (c command) StartAll(f BulkFlags) error {
	api, ctx, err := c.reachable(f.APIFlags)
	if err != nil {
		return err
	}
	results, err := api.StartAll(ctx, f.AutoOnly)
	if err != nil {
		return err
	}
	printJSON(results)
	return nil
}

func (c command) StopAll(f APIFlags) error {
	api, ctx, err := c.reachable(f)
	if err != nil {
		return err
	}
	results, err := api.StopAll(ctx)
	if err != nil {
		return err
	}
	printJSON(results)
	return nil
}

func (c command) Log(f LogFlags) error {
	api, ctx, err := c.reachable(f.APIFlags)
	if err != nil {
		return err
	}
	entries, err := api.Log(ctx, f.Tail)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Service != "" {
			fmt.Printf("%s [%s] %s: %s\n", e.Time.Format(time.RFC3339), e.Level, e.Service, e.Message)
		} else {
			fmt.Printf("%s [%s] %s\n", e.Time.Format(time.RFC3339), e.Level, e.Message)
		}
	}
	return nil
}
