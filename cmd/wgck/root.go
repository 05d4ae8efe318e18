package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"wg-confkeeper/cmd"
	dbusclient "wg-confkeeper/cmd/wgck/dbus_client"
	"wg-confkeeper/cmd/wgck/keygen"
	"wg-confkeeper/cmd/wgck/processor"
	"wg-confkeeper/cmd/wgck/render"
	"wg-confkeeper/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const appName = "wgck"

var nowFunc = time.Now

// app carries the global flags and the loaded tool configuration.
type app struct {
	confPath string
	docPath  string
	debug    bool
	kind     string
	conf     models.Tool
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Manage WireGuard / AmneziaWG server and client configs",
		Version:       cmd.AppVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return a.setup(c)
		},
	}
	root.SetVersionTemplate(cmd.BuildVersionOutput("Wg-Confkeeper"))
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.PersistentFlags().StringVar(&a.confPath, "conf", cmd.DefaultToolTomlName, "tool toml conf file")
	root.PersistentFlags().StringVar(&a.docPath, "doc", "", "server config document, overrides the recorded one")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.kind, "kind", "", "awg or wg, overrides detection from the file name or key tool")

	root.AddCommand(
		a.initCmd(),
		a.templateCmd(),
		a.addCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.renderCmd(),
		a.qrCmd(),
		a.listCmd(),
	)
	return root
}

func (a *app) setup(c *cobra.Command) error {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	conf, err := cmd.LoadConf(a.confPath, c.Flags().Changed("conf"))
	if err != nil {
		return err
	}
	a.conf = conf.Tool

	if a.debug || a.conf.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	return nil
}

// nameArg accepts exactly one client name.
func nameArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError{fmt.Errorf("expected one client name, got %d arguments", len(args))}
	}
	return nil
}

func (a *app) openDocument() (*processor.Document, error) {
	path, err := cmd.ResolveDocument(a.docPath, a.conf)
	if err != nil {
		return nil, err
	}
	kind, err := parseKind(a.kind)
	if err != nil {
		return nil, err
	}
	var opts []processor.Option
	if kind != models.KindUnknown {
		opts = append(opts, processor.WithKind(kind))
	}
	return processor.Open(path, opts...)
}

func (a *app) keys(kind models.Kind) (keygen.Generator, error) {
	return keygen.Select(a.conf.KeyTool, kind)
}

func (a *app) manager() *dbusclient.SystemdManager {
	return dbusclient.New(a.conf.RestartService)
}

// renderClients writes the client configs, and the QR codes when qr is set.
func (a *app) renderClients(doc *processor.Document, qr bool) error {
	tmpl, err := render.ReadTemplate(a.conf.Template)
	if err != nil {
		return err
	}
	written, err := render.Clients(doc, tmpl, a.conf.OutputDir)
	if err != nil {
		return err
	}
	logrus.WithField("count", len(written)).Info("client configs rendered")
	if !qr {
		return nil
	}
	_, err = render.QRCodes(doc, a.conf.OutputDir)
	return err
}

// afterMutation renders on request and restarts the tunnel service.
func (a *app) afterMutation(ctx context.Context, doc *processor.Document, renderFlag, qr bool) error {
	if renderFlag || qr {
		if err := a.renderClients(doc, qr); err != nil {
			return err
		}
	}
	return a.manager().RestartService(ctx, dbusclient.ServiceName(doc.Kind(), doc.Path()))
}
