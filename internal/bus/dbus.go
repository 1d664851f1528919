package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// D-Bus error names that indicate the peer is gone rather than broken.
const (
	dbusErrServiceUnknown = "org.freedesktop.DBus.Error.ServiceUnknown"
	dbusErrNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"
	dbusErrNoReply        = "org.freedesktop.DBus.Error.NoReply"
	dbusErrTimeout        = "org.freedesktop.DBus.Error.Timeout"
)

// DBus is the godbus-backed Connection used in production.
type DBus struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

var _ Connection = (*DBus)(nil)

// DialSession connects to the session bus. A nil logger falls back to
// slog.Default.
func DialSession(logger *slog.Logger) (*DBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("bus: connect session bus: %w", err)
	}
	return &DBus{conn: conn, logger: logger}, nil
}

// Wrap adapts an existing godbus connection, for callers that already
// hold one (e.g. to share it with other exported objects).
func Wrap(conn *dbus.Conn, logger *slog.Logger) *DBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBus{conn: conn, logger: logger}
}

func (d *DBus) ClaimName(name string) (ClaimReply, error) {
	reply, err := d.conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return 0, fmt.Errorf("bus: request name %s: %w", name, err)
	}
	switch reply {
	case dbus.RequestNameReplyPrimaryOwner:
		return ClaimPrimaryOwner, nil
	case dbus.RequestNameReplyExists:
		return ClaimOwnedByOther, nil
	default:
		// AlreadyOwner and InQueue cannot happen with DoNotQueue on a
		// fresh claim; treat them as transport anomalies.
		return 0, fmt.Errorf("bus: unexpected request-name reply %d for %s", reply, name)
	}
}

func (d *DBus) ReleaseName(name string) error {
	if _, err := d.conn.ReleaseName(name); err != nil {
		return fmt.Errorf("bus: release name %s: %w", name, err)
	}
	return nil
}

func (d *DBus) Export(h Handlers) error {
	app := map[string]interface{}{
		"Activate": func(pd map[string]dbus.Variant) *dbus.Error {
			h.Activate(fromVariantMap(pd))
			return nil
		},
		"Open": func(uris []string, pd map[string]dbus.Variant) *dbus.Error {
			h.Open(uris, fromVariantMap(pd))
			return nil
		},
		"ActivateAction": func(name string, parameter []dbus.Variant, pd map[string]dbus.Variant) *dbus.Error {
			h.ActivateAction(name, fromVariantList(parameter), fromVariantMap(pd))
			return nil
		},
	}
	if err := d.conn.ExportMethodTable(app, ObjectPath, ApplicationInterface); err != nil {
		return fmt.Errorf("bus: export %s: %w", ApplicationInterface, err)
	}
	svc := map[string]interface{}{
		"CommandLine": func(args []string, workdir string, pd map[string]dbus.Variant) (int32, *dbus.Error) {
			return int32(h.CommandLine(args, workdir, fromVariantMap(pd))), nil
		},
		"Quit": func() *dbus.Error {
			h.Quit()
			return nil
		},
	}
	if err := d.conn.ExportMethodTable(svc, ObjectPath, ServiceInterface); err != nil {
		return fmt.Errorf("bus: export %s: %w", ServiceInterface, err)
	}
	return nil
}

func (d *DBus) Peer(name string) Peer {
	return &dbusPeer{obj: d.conn.Object(name, ObjectPath)}
}

func (d *DBus) WaitNameVanish(ctx context.Context, name string) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchSender("org.freedesktop.DBus"),
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, name),
	}
	if err := d.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return fmt.Errorf("bus: watch %s: %w", name, err)
	}
	defer func() { _ = d.conn.RemoveMatchSignal(opts...) }()

	ch := make(chan *dbus.Signal, 8)
	d.conn.Signal(ch)
	defer d.conn.RemoveSignal(ch)

	// The owner may already be gone by the time the match is installed.
	var has bool
	err := d.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, name).Store(&has)
	if err == nil && !has {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			if sig.Name != "org.freedesktop.DBus.NameOwnerChanged" || len(sig.Body) != 3 {
				continue
			}
			changed, _ := sig.Body[0].(string)
			newOwner, _ := sig.Body[2].(string)
			if changed == name && newOwner == "" {
				return nil
			}
		}
	}
}

func (d *DBus) Close() error {
	return d.conn.Close()
}

type dbusPeer struct {
	obj dbus.BusObject
}

func (p *dbusPeer) Activate(ctx context.Context, pd PlatformData) error {
	call := p.obj.CallWithContext(ctx, ApplicationInterface+".Activate", 0, toVariantMap(pd))
	return mapCallError(call.Err)
}

func (p *dbusPeer) Open(ctx context.Context, uris []string, pd PlatformData) error {
	call := p.obj.CallWithContext(ctx, ApplicationInterface+".Open", 0, uris, toVariantMap(pd))
	return mapCallError(call.Err)
}

func (p *dbusPeer) ActivateAction(ctx context.Context, name string, parameter []any, pd PlatformData) error {
	call := p.obj.CallWithContext(ctx, ApplicationInterface+".ActivateAction", 0, name, toVariantList(parameter), toVariantMap(pd))
	return mapCallError(call.Err)
}

func (p *dbusPeer) CommandLine(ctx context.Context, args []string, workdir string, pd PlatformData) (int, error) {
	call := p.obj.CallWithContext(ctx, ServiceInterface+".CommandLine", 0, args, workdir, toVariantMap(pd))
	if call.Err != nil {
		return 0, mapCallError(call.Err)
	}
	var code int32
	if err := call.Store(&code); err != nil {
		return 0, fmt.Errorf("bus: decode CommandLine reply: %w", err)
	}
	return int(code), nil
}

func (p *dbusPeer) Quit(ctx context.Context) error {
	call := p.obj.CallWithContext(ctx, ServiceInterface+".Quit", 0)
	return mapCallError(call.Err)
}

// mapCallError folds D-Bus error names into the package taxonomy so the
// coordination core never has to inspect transport details.
func mapCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCallTimeout, err)
	}
	var dberr dbus.Error
	if errors.As(err, &dberr) {
		switch dberr.Name {
		case dbusErrServiceUnknown, dbusErrNameHasNoOwner:
			return fmt.Errorf("%w: %v", ErrNoOwner, err)
		case dbusErrNoReply, dbusErrTimeout:
			return fmt.Errorf("%w: %v", ErrCallTimeout, err)
		}
	}
	return err
}

func fromVariantMap(m map[string]dbus.Variant) PlatformData {
	if len(m) == 0 {
		return nil
	}
	out := make(PlatformData, len(m))
	for k, v := range m {
		out[k] = v.Value()
	}
	return out
}

func toVariantMap(pd PlatformData) map[string]dbus.Variant {
	out := make(map[string]dbus.Variant, len(pd))
	for k, v := range pd {
		out[k] = dbus.MakeVariant(v)
	}
	return out
}

func fromVariantList(vs []dbus.Variant) []any {
	if len(vs) == 0 {
		return nil
	}
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v.Value()
	}
	return out
}

func toVariantList(vs []any) []dbus.Variant {
	out := make([]dbus.Variant, len(vs))
	for i, v := range vs {
		out[i] = dbus.MakeVariant(v)
	}
	return out
}
