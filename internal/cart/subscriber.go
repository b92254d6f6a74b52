package cart

import "context"

// Command names one of the four cart mutators.
type Command string

const (
	CommandAdd      Command = "add"
	CommandRemove   Command = "remove"
	CommandDecrease Command = "decrease"
	CommandClear    Command = "clear"
)

// Event describes one applied command. State is the cart after the command
// and is owned by the receiver.
type Event struct {
	Command Command
	ItemID  ItemID
	// Changed is false for commands that targeted an unknown id.
	Changed bool
	State   State
}

// Subscriber observes every applied command, in order. OnChange runs inside
// the store's command critical section: it must not issue commands on the
// same store or unsubscribe itself.
type Subscriber interface {
	OnChange(ctx context.Context, ev Event)
}

// SubscriberFunc adapts a plain function to Subscriber.
type SubscriberFunc func(ctx context.Context, ev Event)

func (f SubscriberFunc) OnChange(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// CommandRecorder is the metrics surface the cart reports into.
type CommandRecorder interface {
	ObserveCommand(command string, totalQuantity, lineItems int)
}

// NewMetricsSubscriber reports each command and the resulting cart size.
func NewMetricsSubscriber(rec CommandRecorder) Subscriber {
	return SubscriberFunc(func(_ context.Context, ev Event) {
		rec.ObserveCommand(string(ev.Command), ev.State.TotalQuantity, len(ev.State.Items))
	})
}
