package main

import (
	"errors"
	"fmt"
	"os"

	"wg-confkeeper/cmd"
	dbusclient "wg-confkeeper/cmd/wgck/dbus_client"
	"wg-confkeeper/cmd/wgck/keygen"
	"wg-confkeeper/cmd/wgck/netinfo"
	"wg-confkeeper/cmd/wgck/processor"
	"wg-confkeeper/cmd/wgck/render"
	"wg-confkeeper/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func parseKind(s string) (models.Kind, error) {
	switch s {
	case "":
		return models.KindUnknown, nil
	case "awg":
		return models.KindAWG, nil
	case "wg":
		return models.KindWG, nil
	default:
		return models.KindUnknown, usageError{fmt.Errorf("unknown kind %q, use awg or wg", s)}
	}
}

// generatorKind is the kind implied by the key tool, awg for the builtin one.
func generatorKind(g keygen.Generator) models.Kind {
	if t, ok := g.(*keygen.Tool); ok {
		return models.KindForTool(t.Name())
	}
	return models.KindAWG
}

func (a *app) initCmd() *cobra.Command {
	var (
		ipaddr string
		tun    string
		port   int
	)
	c := &cobra.Command{
		Use:   "init",
		Short: "Create the server config <tool><tun>.conf",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if tun == "" {
				return usageError{errors.New("--tun is required")}
			}
			addr, err := models.ParseAddress(ipaddr)
			if err != nil {
				return err
			}
			kind, err := parseKind(a.kind)
			if err != nil {
				return err
			}
			keys, err := a.keys(kind)
			if err != nil {
				return err
			}
			if kind == models.KindUnknown {
				kind = generatorKind(keys)
			}

			path := a.docPath
			if path == "" {
				path = kind.Tool() + tun + models.ConfExt
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%w: main config %s", models.ErrExists, path)
			}

			pair, err := keygen.NewKeyPair(c.Context(), keys)
			if err != nil {
				return err
			}
			adapter := a.conf.Adapter
			if adapter == "" {
				adapter = netinfo.DefaultAdapter(cmd.DefaultAdapter)
			}
			text, err := render.ServerConfig(render.ServerParams{
				Kind:       kind,
				PrivateKey: pair.PrivateKey,
				PublicKey:  pair.PublicKey,
				Address:    addr,
				Port:       port,
				Interface:  kind.Tool() + tun,
				Adapter:    adapter,
				Now:        nowFunc(),
			})
			if err != nil {
				return err
			}
			if err := processor.Create(path, text); err != nil {
				return err
			}
			if err := cmd.WriteStateFile(a.conf.StateFile, path); err != nil {
				return err
			}
			logrus.
				WithField("config", path).
				WithField("type", kind).
				WithField("pubkey", pair.PublicKey).
				Info("server config created")
			return a.manager().EnableService(c.Context(), dbusclient.ServiceName(kind, path))
		},
	}
	c.Flags().StringVarP(&ipaddr, "ipaddr", "i", "", "server tunnel address with mask, e.g. 10.1.0.1/24")
	c.Flags().StringVarP(&tun, "tun", "t", "", "tunnel number or suffix, e.g. 0")
	c.Flags().IntVarP(&port, "port", "p", 0, "listen port")
	_ = c.MarkFlagRequired("ipaddr")
	_ = c.MarkFlagRequired("port")
	return c
}

func (a *app) templateCmd() *cobra.Command {
	var ipaddr string
	c := &cobra.Command{
		Use:   "template",
		Short: "Create the client config template",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			doc, err := a.openDocument()
			if err != nil {
				return err
			}
			defer doc.Close()

			if _, err := os.Stat(a.conf.Template); err == nil {
				return fmt.Errorf("%w: template %s", models.ErrExists, a.conf.Template)
			}
			override := ipaddr
			if override == "" {
				override = a.conf.EndpointAddr
			}
			endpoint, err := netinfo.ExternalAddress(c.Context(), override)
			if err != nil {
				return err
			}
			logrus.WithField("endpoint", endpoint).Info("server endpoint address")

			tmpl, err := render.ClientTemplate(doc.Kind(), endpoint, a.conf.DNS, a.conf.KeepAlive)
			if err != nil {
				return err
			}
			if err := render.WriteNew(a.conf.Template, tmpl); err != nil {
				return err
			}
			logrus.WithField("template", a.conf.Template).Info("client template created")
			return nil
		},
	}
	c.Flags().StringVarP(&ipaddr, "ipaddr", "i", "", "server endpoint address without mask, looked up when empty")
	return c
}

// mutation is the shared shape of add, update and delete.
type mutation func(c *cobra.Command, doc *processor.Document, name string) (*models.PeerRecord, error)

func (a *app) mutationCmd(use, short string, run mutation) *cobra.Command {
	var renderFlag, qr bool
	c := &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  nameArg,
		RunE: func(c *cobra.Command, args []string) error {
			doc, err := a.openDocument()
			if err != nil {
				return err
			}
			defer doc.Close()

			peer, err := run(c, doc, args[0])
			if err != nil {
				return err
			}
			logrus.
				WithField("peer", peer.Name).
				WithField("pubkey", peer.PublicKey).
				Infof("%s done", use)
			return a.afterMutation(c.Context(), doc, renderFlag, qr)
		},
	}
	c.Flags().BoolVarP(&renderFlag, "render", "c", false, "render client configs afterwards")
	c.Flags().BoolVarP(&qr, "qr", "q", false, "render client configs and qr codes afterwards")
	return c
}

func (a *app) addCmd() *cobra.Command {
	return a.mutationCmd("add", "Add a client peer", func(c *cobra.Command, doc *processor.Document, name string) (*models.PeerRecord, error) {
		keys, err := a.keys(doc.Kind())
		if err != nil {
			return nil, err
		}
		return doc.Add(c.Context(), name, keys)
	})
}

func (a *app) updateCmd() *cobra.Command {
	return a.mutationCmd("update", "Regenerate the keys of a client peer", func(c *cobra.Command, doc *processor.Document, name string) (*models.PeerRecord, error) {
		keys, err := a.keys(doc.Kind())
		if err != nil {
			return nil, err
		}
		return doc.Update(c.Context(), name, keys)
	})
}

func (a *app) deleteCmd() *cobra.Command {
	return a.mutationCmd("delete", "Delete a client peer", func(_ *cobra.Command, doc *processor.Document, name string) (*models.PeerRecord, error) {
		return doc.Delete(name)
	})
}

func (a *app) renderCmd() *cobra.Command {
	var qr bool
	c := &cobra.Command{
		Use:   "render",
		Short: "Write <name>.conf for every client generated in this run",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			doc, err := a.openDocument()
			if err != nil {
				return err
			}
			defer doc.Close()
			return a.renderClients(doc, qr)
		},
	}
	c.Flags().BoolVarP(&qr, "qr", "q", false, "also write qr codes")
	return c
}

func (a *app) qrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qr",
		Short: "Write a png qr code next to every client config",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			doc, err := a.openDocument()
			if err != nil {
				return err
			}
			defer doc.Close()
			written, err := render.QRCodes(doc, a.conf.OutputDir)
			if err != nil {
				return err
			}
			logrus.WithField("count", len(written)).Info("qr codes written")
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the registered peers",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			doc, err := a.openDocument()
			if err != nil {
				return err
			}
			defer doc.Close()
			fmt.Fprintln(c.OutOrStdout(), peerTable(doc.Registry().Peers()))
			return nil
		},
	}
}
