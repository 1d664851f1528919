package service

import (
	"log/slog"
	"os"
	"strings"

	"github.com/sailfishos-mirror/kdbusaddons/internal/bus"
	"github.com/sailfishos-mirror/kdbusaddons/internal/history"
	"github.com/sailfishos-mirror/kdbusaddons/internal/metrics"
)

// receiver implements bus.Handlers on behalf of the owning instance. It
// decodes inbound calls into events and hands them to the dispatcher;
// only the bus transport (and the local HTTP surface) holds a reference.
type receiver struct {
	svc *Service
}

var _ bus.Handlers = (*receiver)(nil)

func (r *receiver) Activate(pd bus.PlatformData) {
	s := r.svc
	s.token.noteFromPlatformData(pd)
	metrics.IncActivation("activate")
	s.record(history.KindActivate, "")
	s.disp.dispatch(ActivateEvent{PlatformData: pd})
}

func (r *receiver) Open(uris []string, pd bus.PlatformData) {
	s := r.svc
	s.token.noteFromPlatformData(pd)
	metrics.IncActivation("open")
	s.record(history.KindOpen, strings.Join(uris, " "))
	s.disp.dispatch(OpenEvent{URIs: uris, PlatformData: pd})
}

func (r *receiver) ActivateAction(name string, parameter []any, pd bus.PlatformData) {
	s := r.svc
	s.token.noteFromPlatformData(pd)
	ev := ActionEvent{Name: name, PlatformData: pd}
	switch len(parameter) {
	case 0:
	case 1:
		ev.Parameter = parameter[0]
		ev.HasParameter = true
	default:
		// A single value is expected; longer lists collapse to none.
		s.log.Debug("activate action parameter list collapsed",
			slog.String("action", name),
			slog.Int("elements", len(parameter)))
	}
	metrics.IncActivation("action")
	s.record(history.KindAction, name)
	s.disp.dispatch(ev)
}

func (r *receiver) CommandLine(args []string, workdir string, pd bus.PlatformData) int {
	s := r.svc
	s.token.noteFromPlatformData(pd)
	metrics.IncActivation("command_line")
	s.record(history.KindCommandLine, strings.Join(args, " "))
	s.disp.dispatch(CommandLineEvent{
		Arguments:        args,
		WorkingDirectory: workdir,
		PlatformData:     pd,
	})
	// The reply carries whatever the exit value holds right now. Queued
	// listeners run after this returns and cannot influence it.
	return s.exit.value()
}

func (r *receiver) Quit() {
	r.svc.signalQuit()
}

func (s *Service) record(kind history.Kind, detail string) {
	s.recorder.Record(history.Event{
		Kind:    kind,
		Service: s.name,
		PID:     os.Getpid(),
		Detail:  detail,
	})
}
