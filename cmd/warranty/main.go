package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nmasdoufi/warranty/pkg/apple"
	"github.com/nmasdoufi/warranty/pkg/asd"
	"github.com/nmasdoufi/warranty/pkg/checker"
	"github.com/nmasdoufi/warranty/pkg/config"
	"github.com/nmasdoufi/warranty/pkg/glpi"
	"github.com/nmasdoufi/warranty/pkg/host"
	"github.com/nmasdoufi/warranty/pkg/inventory"
	"github.com/nmasdoufi/warranty/pkg/logging"
)

const localNotice = "Without your input, we'll use this machine's serial number."

// app holds flag values and the collaborators tests replace.
type app struct {
	configPath  string
	format      string
	snmpTargets []string
	glpi        bool
	verbose     bool

	runHost host.Runner
	stdin   io.Reader
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{runHost: host.ExecRunner, stdin: os.Stdin}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		var be *checker.BatchError
		if !errors.As(err, &be) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warranty [SERIAL ...]",
		Short: "Look up Apple warranty coverage by serial number",
		Long: `Look up Apple hardware warranty coverage for one or more serial numbers.

With no serials, the serial of the machine running the command is used.
Serials can also be read from network devices over SNMP with --snmp.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.run,
	}
	f := cmd.Flags()
	f.StringVar(&a.configPath, "config", "warranty.yaml", "path to config file")
	f.StringVar(&a.format, "format", "", "warranty response format (html|json|list|auto)")
	f.StringArrayVar(&a.snmpTargets, "snmp", nil, "read a serial over SNMP from a host, address or CIDR (repeatable)")
	f.BoolVar(&a.glpi, "glpi", false, "push successful lookups to GLPI")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.format != "" {
		cfg.Warranty.Format = a.format
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	if a.verbose {
		level = logging.LevelDebug
	}
	logger, err := logging.New(cfg.Logging.Path, level)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logger.Close()

	var handlers []checker.Handler
	if a.glpi {
		gc, err := a.glpiClient(cfg, logger, out)
		if err != nil {
			return err
		}
		defer func() {
			if err := gc.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Debugf("glpi close: %v", err)
			}
		}()
		handlers = append(handlers, pushHandler(gc, logger))
	}

	serials, err := a.resolveSerials(ctx, cfg, logger, args, out)
	if err != nil {
		return err
	}

	client := apple.NewClient(cfg)
	defer client.CloseIdleConnections()
	tables := func(ctx context.Context) (asd.Table, error) {
		return asd.Fetch(ctx, client.HTTPClient(), cfg.Endpoints.ASDTableURL)
	}
	logger.Debugf("checking %d serials with format %s", len(serials), cfg.Warranty.Format)
	return checker.New(client, tables, logger).Run(ctx, serials, out, handlers...)
}

// resolveSerials returns CLI serials followed by SNMP serials. With neither,
// the local machine's serial is used.
func (a *app) resolveSerials(ctx context.Context, cfg *config.Config, logger *logging.Logger, args []string, out io.Writer) ([]string, error) {
	serials := make([]string, 0, len(args))
	for _, arg := range args {
		serials = append(serials, inventory.NormalizeSerial(arg))
	}
	if len(a.snmpTargets) > 0 {
		found, err := host.NewSNMPReader(cfg.SNMP, logger).Serials(ctx, a.snmpTargets)
		if err != nil {
			return nil, fmt.Errorf("snmp: %w", err)
		}
		if len(found) == 0 {
			logger.Infof("no SNMP target reported a serial")
		}
		serials = append(serials, found...)
	}
	if len(args) == 0 && len(a.snmpTargets) == 0 {
		fmt.Fprintln(out, localNotice)
		s, err := host.LocalSerial(ctx, a.runHost)
		if err != nil {
			return nil, err
		}
		serials = append(serials, s)
	}
	return serials, nil
}

func (a *app) glpiClient(cfg *config.Config, logger *logging.Logger, out io.Writer) (*glpi.Client, error) {
	if err := maybePromptGLPIPassword(cfg, a.stdin, out); err != nil {
		return nil, err
	}
	client := glpi.NewClient(cfg.GLPI, cfg.HTTP.Timeout)
	if !client.Enabled() {
		return nil, errors.New("--glpi requires glpi.base_url (or GLPI_BASE_URL)")
	}
	logger.Infof("pushing records to GLPI at %s", cfg.GLPI.BaseURL)
	return client, nil
}

// pushHandler sends each record to GLPI. Push failures never fail the run.
func pushHandler(client *glpi.Client, logger *logging.Logger) checker.Handler {
	return func(ctx context.Context, rec inventory.WarrantyRecord) {
		if err := client.PushWarranty(ctx, rec); err != nil {
			logger.Errorf("glpi push failed for %s: %v", rec.Serial, err)
		}
	}
}

func maybePromptGLPIPassword(cfg *config.Config, in io.Reader, out io.Writer) error {
	if cfg == nil || cfg.GLPI.OAuth == nil {
		return nil
	}
	if cfg.GLPI.OAuth.Password != "" || cfg.GLPI.OAuth.Username == "" {
		return nil
	}
	fmt.Fprintf(out, "Enter GLPI password for %s: ", cfg.GLPI.OAuth.Username)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return fmt.Errorf("read GLPI password: %w", err)
	}
	cfg.GLPI.OAuth.Password = strings.TrimSpace(line)
	return nil
}
