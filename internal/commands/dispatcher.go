package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/susu3304/piebot/internal/pie"
)

// Command is an inbound slash command, whatever transport it came from.
type Command struct {
	Name    string
	Args    string
	User    string
	Channel string
}

const EventMessage = "message"

// Event is an inbound chat message. ThreadToken is set when the message
// was posted inside a thread.
type Event struct {
	Type        string
	Text        string
	User        string
	Channel     string
	ThreadToken pie.Token
	IsFromBot   bool
}

// Response is the reply text for a command or event. An empty Text means
// there is nothing to send.
type Response struct {
	Text string
	Err  error
}

func failure(err error) Response {
	return Response{Text: pie.UserMessage(err), Err: err}
}

var aliases = map[string]string{
	"pie":       "create",
	"slicepie":  "slice",
	"eatpie":    "settle",
	"piereport": "report",
	"clearpies": "clear",
}

func canonicalName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// Dispatcher routes commands and thread replies to the pie service.
type Dispatcher struct {
	svc *pie.Service
}

func NewDispatcher(svc *pie.Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Response {
	switch canonicalName(cmd.Name) {
	case "create":
		return d.create(ctx, cmd)
	case "slice":
		return d.slice(ctx, cmd)
	case "settle":
		return d.settle(ctx)
	case "report":
		return d.report(ctx)
	case "clear":
		return d.clear(ctx, cmd)
	default:
		return failure(fmt.Errorf("%w: %q", pie.ErrUnrecognizedCommand, cmd.Name))
	}
}

// create accepts "<value>" or "<pieId> <value>". A lone field that is not a
// number is read as an id given without a value.
func (d *Dispatcher) create(ctx context.Context, cmd Command) Response {
	in := pie.CreatePieInput{Owner: cmd.User, Channel: cmd.Channel}
	switch fields := strings.Fields(cmd.Args); len(fields) {
	case 0:
		return failure(pie.ErrMissingValue)
	case 1:
		if _, err := decimal.NewFromString(fields[0]); err != nil {
			return failure(fmt.Errorf("%w: pie %q", pie.ErrMissingValue, fields[0]))
		}
		in.RawValue = fields[0]
	default:
		in.ID = fields[0]
		in.RawValue = strings.Join(fields[1:], " ")
	}

	p, err := d.svc.Registrar.CreatePie(ctx, in)
	if err != nil {
		return failure(err)
	}
	return Response{Text: fmt.Sprintf("Pie %s created with value %s", p.ID, pie.FormatAmount(p.DeclaredValue))}
}

// slice accepts "<pieId> <value>".
func (d *Dispatcher) slice(ctx context.Context, cmd Command) Response {
	fields := strings.Fields(cmd.Args)
	if len(fields) == 0 {
		return failure(pie.ErrMissingPieID)
	}
	s, err := d.svc.Recorder.RecordSlice(ctx, pie.SliceInput{
		PieID:    fields[0],
		Claimant: cmd.User,
		RawValue: strings.Join(fields[1:], " "),
	})
	if err != nil {
		return failure(err)
	}
	return Response{Text: fmt.Sprintf("Slice of %s for pie %s has been added by %s", pie.FormatAmount(s.Value), s.PieID, s.Claimant)}
}

func (d *Dispatcher) settle(ctx context.Context) Response {
	report, err := d.svc.Engine.Settle(ctx)
	if err != nil {
		return failure(err)
	}
	return Response{Text: report.Render()}
}

func (d *Dispatcher) report(ctx context.Context) Response {
	report, err := d.svc.Engine.Report(ctx)
	if err != nil {
		return failure(err)
	}
	return Response{Text: report.Render()}
}

func (d *Dispatcher) clear(ctx context.Context, cmd Command) Response {
	if err := d.svc.Clear(ctx); err != nil {
		return failure(err)
	}
	log.Printf("dispatcher: ledger cleared by %s", cmd.User)
	return Response{Text: "All pies, slices and averages have been cleared"}
}

// HandleEvent records a thread reply as a slice. The second result is false
// when the event is not a reply to a pie thread. A successful slice returns
// an empty Response because the recorder confirms it in the thread itself.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev Event) (Response, bool) {
	if ev.Type != EventMessage || ev.IsFromBot || ev.ThreadToken == "" {
		return Response{}, false
	}
	p, err := d.svc.Recorder.Resolve(ctx, pie.SliceInput{Token: ev.ThreadToken})
	if errors.Is(err, pie.ErrPieNotFound) {
		return Response{}, false
	}
	if err != nil {
		return failure(err), true
	}

	var raw string
	if fields := strings.Fields(ev.Text); len(fields) > 0 {
		raw = fields[0]
	}
	if _, err := d.svc.Recorder.RecordSlice(ctx, pie.SliceInput{
		PieID:    p.ID,
		Claimant: ev.User,
		RawValue: raw,
	}); err != nil {
		return failure(err), true
	}
	return Response{}, true
}
