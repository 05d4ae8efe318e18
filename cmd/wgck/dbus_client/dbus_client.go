// Package dbusclient restarts the quick service of a tunnel through systemd.
// When disabled every call is only logged.
package dbusclient

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wg-confkeeper/models"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	quickServiceFormat = "%s-quick@%s.service"
	modeReplace        = "replace"
	systemdDest        = "org.freedesktop.systemd1"
	systemdPath        = "/org/freedesktop/systemd1"
	settleDelay        = 2 * time.Second
)

// refer: https://www.freedesktop.org/software/systemd/man/latest/org.freedesktop.systemd1.html

/**
RestartUnit(in  s name,
			in  s mode,
			out o job);
*/

/**
EnableUnitFiles(in  as files,
                in  b runtime,
                in  b force,
                out b carries_install_info,
                out a(sss) changes);
*/

type Changes struct {
	TypeOfChange string
	FileName     string
	Destination  string
}

type CarriesInstallInfo bool

type SystemdManager struct {
	m          sync.Mutex
	conn       *dbus.Conn
	obj        dbus.BusObject
	enableDbus bool
	settle     time.Duration
}

func New(enable bool) *SystemdManager {
	return &SystemdManager{enableDbus: enable, settle: settleDelay}
}

// ServiceName is the wg-quick/awg-quick unit of the document at docPath.
func ServiceName(kind models.Kind, docPath string) string {
	tunnel := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	return fmt.Sprintf(quickServiceFormat, kind.Tool(), tunnel)
}

func (d *SystemdManager) connect(ctx context.Context) (err error) {
	d.conn, err = dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: system bus: %v", models.ErrExternalTool, err)
	}
	d.obj = d.conn.Object(systemdDest, systemdPath)
	return nil
}

func (d *SystemdManager) disconnect() error {
	return d.conn.Close()
}

// wait gives systemd time to act on the queued job
func (d *SystemdManager) wait(ctx context.Context) {
	// TODO: watch the JobRemoved signal instead of sleeping
	select {
	case <-ctx.Done():
	case <-time.After(d.settle):
	}
}

func (d *SystemdManager) EnableService(ctx context.Context, service string) error {
	d.m.Lock()
	defer d.m.Unlock()

	if !d.enableDbus {
		logrus.WithField("service", service).Info("simulating enable service")
		return nil
	}

	if err := d.connect(ctx); err != nil {
		return err
	}
	defer d.disconnect()

	var carriesInstallInfo CarriesInstallInfo
	var changes []Changes

	call := d.obj.CallWithContext(ctx, "org.freedesktop.systemd1.Manager.EnableUnitFiles", 0, []string{service}, false, false)
	if call.Err != nil {
		return fmt.Errorf("%w: enable %s: %v", models.ErrExternalTool, service, call.Err)
	}
	if err := call.Store(&carriesInstallInfo, &changes); err != nil {
		return err
	}

	if len(changes) == 0 {
		logrus.WithField("service", service).Info("service is already enabled")
	} else {
		logrus.
			WithField("file", changes[0].FileName).
			WithField("dest", changes[0].Destination).
			Info("service enabled")
	}
	d.wait(ctx)
	return nil
}

func (d *SystemdManager) RestartService(ctx context.Context, service string) error {
	d.m.Lock()
	defer d.m.Unlock()

	if !d.enableDbus {
		logrus.WithField("service", service).Info("simulating restart service")
		return nil
	}

	if err := d.connect(ctx); err != nil {
		return err
	}
	defer d.disconnect()

	var job dbus.ObjectPath
	call := d.obj.CallWithContext(ctx, "org.freedesktop.systemd1.Manager.RestartUnit", 0, service, modeReplace)
	if call.Err != nil {
		return fmt.Errorf("%w: restart %s: %v", models.ErrExternalTool, service, call.Err)
	}
	if err := call.Store(&job); err != nil {
		return err
	}
	logrus.WithField("service", service).WithField("job", job).Info("successfully dispatched restart job")
	d.wait(ctx)
	return nil
}
