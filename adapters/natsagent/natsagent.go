// Package natsagent provides an orchestrator.AgentClient that reaches the
// agent fleet over NATS request/reply.
package natsagent

import (
	"context"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/nats-io/nats.go"

	"github.com/scholarpress/orchestrator"
)

const defaultRequestTimeout = 2 * time.Minute

// Connect dials NATS at the provided URL with reconnects enabled.
func Connect(url string, logger orchestrator.Logger, extra ...nats.Option) (*nats.Conn, error) {
	ctx := context.Background()

	opts := []nats.Option{
		nats.Name("orchestrator-agents"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				// NoReturnErr: the client reconnects on its own.
				logger.Error(ctx, errors.Wrap(err, "nats disconnected"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Debug(ctx, "nats reconnected", orchestrator.MKV{"url": nc.ConnectedUrl()})
		}),
	}
	opts = append(opts, extra...)

	return nats.Connect(url, opts...)
}

// Client invokes agents by publishing a request on
// "agents.<agent_type>.<action>" and waiting for the reply.
type Client struct {
	conn *nats.Conn
}

func New(conn *nats.Conn) *Client {
	return &Client{conn: conn}
}

var _ orchestrator.AgentClient = (*Client)(nil)

// request is the wire envelope agents consume.
type request struct {
	Action    string `json:"action"`
	Data      []byte `json:"data,omitempty"`
	ContextID string `json:"context_id"`
	Priority  string `json:"priority"`
}

// reply is the wire envelope agents respond with.
type reply struct {
	Success   bool   `json:"success"`
	Result    []byte `json:"result,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func Subject(agent orchestrator.AgentType, action orchestrator.Action) string {
	return "agents." + string(agent) + "." + string(action)
}

func (c *Client) Invoke(ctx context.Context, req orchestrator.InvokeRequest) orchestrator.Result {
	env := request{
		Action:    string(req.Action),
		Data:      req.Payload,
		ContextID: req.WorkflowID,
		Priority:  string(req.Priority),
	}

	b, err := orchestrator.Marshal(&env)
	if err != nil {
		return orchestrator.Result{
			Kind:   orchestrator.ErrKindRejected,
			Detail: err.Error(),
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, Subject(req.Agent, req.Action), b)
	if err != nil {
		return orchestrator.Result{
			Kind:   classify(err),
			Detail: err.Error(),
		}
	}

	var rep reply
	err = orchestrator.Unmarshal(msg.Data, &rep)
	if err != nil {
		return orchestrator.Result{
			Kind: orchestrator.ErrKindRejected,
			Detail: errors.Wrap(err, "malformed agent reply", j.KV(
				"subject", Subject(req.Agent, req.Action)),
			).Error(),
		}
	}

	return mapReply(rep)
}

// mapReply translates the wire envelope into a Result. An unknown or absent
// error kind on a failed reply is treated as a rejection since retrying an
// unclassified failure could duplicate agent side effects.
func mapReply(rep reply) orchestrator.Result {
	if !rep.Success {
		kind := orchestrator.ErrKind(rep.ErrorKind)
		if !kind.Valid() || kind == orchestrator.ErrKindNone {
			kind = orchestrator.ErrKindRejected
		}

		return orchestrator.Result{
			Kind:   kind,
			Detail: rep.Detail,
		}
	}

	return orchestrator.Result{
		Success: true,
		Data:    rep.Result,
	}
}

// classify maps transport failures onto the retryable error taxonomy. No
// responders or a dropped connection is a transient outage, an elapsed
// deadline is a timeout.
func classify(err error) orchestrator.ErrKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, nats.ErrTimeout):
		return orchestrator.ErrKindTimeout
	case errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrDisconnected):
		return orchestrator.ErrKindUnavailable
	default:
		return orchestrator.ErrKindUnavailable
	}
}
