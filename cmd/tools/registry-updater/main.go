// cmd/tools/registry-updater/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"search-courier/internal/common/config"
	dss "search-courier/internal/workers/search/default-search-strategy"
	"search-courier/pkg/registry"
)

func main() {
	app := &cli.Command{
		Name:  "registry-updater",
		Usage: "Maintain configs/activity-registry.json",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to registry file",
				Value: "configs/activity-registry.json",
			},
		},
		Commands: []*cli.Command{
			syncCommand(),
			updateCommand(),
			validateCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// syncCommand regenerates the entry of every worker this service ships from
// its compiled schemas and configured timeout.
func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Regenerate worker entries from code",
		Action: func(ctx context.Context, c *cli.Command) error {
			return syncRegistry(c.String("path"))
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Update a single field of an activity",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Activity ID to update", Required: true},
			&cli.StringFlag{Name: "field", Usage: "status, version, displayName, description, timeout or retries", Required: true},
			&cli.StringFlag{Name: "value", Usage: "New value for the field", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return updateRegistry(c.String("path"), c.String("id"), c.String("field"), c.String("value"))
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate the registry file",
		Action: func(ctx context.Context, c *cli.Command) error {
			reg, err := registry.LoadRegistry(c.String("path"))
			if err != nil {
				return fmt.Errorf("loading registry: %w", err)
			}
			if err := reg.Validate(); err != nil {
				return err
			}
			fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))
			return nil
		},
	}
}

func syncRegistry(path string) error {
	workerCfg := dss.LoadConfig(nil)
	if cfg, err := config.Load(); err == nil {
		workerCfg = dss.LoadConfig(cfg)
	} else {
		fmt.Printf("Warning: config not loaded, using defaults: %v\n", err)
	}

	activity, err := dss.Activity(workerCfg)
	if err != nil {
		return err
	}

	reg, err := registry.LoadRegistry(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("loading registry: %w", err)
		}
		reg = &registry.ActivityRegistry{Version: "1.0.0"}
	}

	// Lifecycle fields are curated by hand.
	if existing, ok := reg.Find(activity.ID); ok {
		activity.ImplementationStatus = existing.ImplementationStatus
		activity.Workflows = existing.Workflows
	}
	reg.Upsert(activity, time.Now())

	if err := reg.Validate(); err != nil {
		return err
	}
	if err := registry.Save(reg, path); err != nil {
		return err
	}
	fmt.Printf("Synced activity %s into %s\n", activity.ID, path)
	return nil
}

func updateRegistry(path, id, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	if err := reg.SetField(id, field, value, time.Now()); err != nil {
		return err
	}
	if err := registry.Save(reg, path); err != nil {
		return err
	}
	fmt.Printf("Updated activity %s, field %s to %s\n", id, field, value)
	return nil
}
