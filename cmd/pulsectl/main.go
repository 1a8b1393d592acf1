// main.go - Admin control tool for SitePulse
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitepulse/internal"
	"sitepulse/internal/analytics"
	"sitepulse/internal/events"
	"sitepulse/internal/pipeline"
	"sitepulse/internal/seeder"
	"sitepulse/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&BlockDomainCommand{},
	&UnblockDomainCommand{},
	&ListBlockedCommand{},
	&RollupCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
			if err := app.Pipeline.Close(); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

func requireApp(app *internal.Application) (*pipeline.Pipeline, error) {
	if app == nil {
		return nil, fmt.Errorf("app initialization failed, cannot connect to database")
	}
	return app.Pipeline, nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// BlockDomainCommand adds a referrer domain to the block list
type BlockDomainCommand struct{}

func (c *BlockDomainCommand) Name() string { return "block" }
func (c *BlockDomainCommand) Description() string {
	return "Blocks a referrer domain: block <domain>"
}

func (c *BlockDomainCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <domain>", c.Name())
	}
	p, err := requireApp(app)
	if err != nil {
		return err
	}

	domain, err := p.Blocklist.AddDomain(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to block domain: %w", err)
	}
	fmt.Printf("Blocked %s\n", domain)
	return nil
}

// UnblockDomainCommand removes a referrer domain from the block list
type UnblockDomainCommand struct{}

func (c *UnblockDomainCommand) Name() string { return "unblock" }
func (c *UnblockDomainCommand) Description() string {
	return "Removes a referrer domain from the block list: unblock <domain>"
}

func (c *UnblockDomainCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <domain>", c.Name())
	}
	p, err := requireApp(app)
	if err != nil {
		return err
	}

	removed, err := p.Blocklist.RemoveDomain(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to unblock domain: %w", err)
	}
	if !removed {
		fmt.Printf("%s was not blocked\n", args[0])
		return nil
	}
	fmt.Printf("Unblocked %s\n", args[0])
	return nil
}

// ListBlockedCommand prints the block list
type ListBlockedCommand struct{}

func (c *ListBlockedCommand) Name() string        { return "list-blocked" }
func (c *ListBlockedCommand) Description() string { return "Lists blocked referrer domains" }

func (c *ListBlockedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	p, err := requireApp(app)
	if err != nil {
		return err
	}

	domains, err := p.Blocklist.ListDomains(ctx)
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		fmt.Println("No blocked domains")
		return nil
	}
	for _, domain := range domains {
		fmt.Println(domain)
	}
	return nil
}

// RollupCommand rebuilds rollup buckets on demand
type RollupCommand struct{}

func (c *RollupCommand) Name() string { return "rollup" }
func (c *RollupCommand) Description() string {
	return "Rebuilds rollups: rollup [-granularity daily|monthly|yearly] [-date YYYY-MM-DD]"
}

func (c *RollupCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("rollup", flag.ContinueOnError)
	granularity := fs.String("granularity", "", "rebuild one granularity only (all when empty)")
	date := fs.String("date", "", "day inside the bucket to rebuild (today when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := requireApp(app)
	if err != nil {
		return err
	}

	at := time.Now()
	if *date != "" {
		at, err = time.ParseInLocation(time.DateOnly, *date, time.Local)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", *date, err)
		}
	}

	grains := []timeframe.Granularity{timeframe.GranularityDaily, timeframe.GranularityMonthly, timeframe.GranularityYearly}
	if *granularity != "" {
		g, err := timeframe.ParseGranularity(*granularity)
		if err != nil {
			return err
		}
		grains = []timeframe.Granularity{g}
	}

	thresholds := pipeline.BotThresholds(p.Config)
	for _, g := range grains {
		rows, err := analytics.RebuildRollup(ctx, p.DB, p.Logger, g, at, thresholds)
		if err != nil {
			return fmt.Errorf("rebuild %s rollup: %w", g, err)
		}
		fmt.Printf("%s %s: %d pages\n", g, g.BucketKey(at), rows)
	}
	return nil
}

// SeedCommand populates the DB with sample traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	eventCount := fs.Int("events", 10000, "number of page views to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := requireApp(app)
	if err != nil {
		return err
	}

	se := seeder.NewSeeder(p.DB, slog.Default(), p.Config.PrivateKey, *eventCount)
	_, err = se.Run(ctx, time.Now())
	return err
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	p, err := requireApp(app)
	if err != nil {
		return err
	}

	var pageViews, clicks int64
	if err := p.DB.WithContext(ctx).Model(&events.AnalyticsEvent{}).Count(&pageViews).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := p.DB.WithContext(ctx).Model(&events.ClickEvent{}).Count(&clicks).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	domains, err := p.Blocklist.ListDomains(ctx)
	if err != nil {
		return err
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Events: %d", pageViews)
	log.Printf("- Clicks: %d", clicks)
	log.Printf("- Blocked domains: %d", len(domains))
	log.Printf("- GeoIP: %t", p.Geo.Enabled())
	log.Printf("- Jobs: %v", p.Jobs.Jobs())

	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: pulsectl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
