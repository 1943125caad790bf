package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errorskg "github.com/sweetpotato0/toolmesh/errors"
	mcpclient "github.com/sweetpotato0/toolmesh/mcp"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
	"github.com/sweetpotato0/toolmesh/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Proxy routes invocations to the connector that owns a tool.
type Proxy struct {
	callTimeout time.Duration
	strictArgs  bool
	logger      *slog.Logger
}

// NewProxy creates a proxy. A zero callTimeout leaves deadlines to the caller's
// context. With strictArgs, arguments that do not match the input schema are
// rejected instead of logged.
func NewProxy(callTimeout time.Duration, strictArgs bool, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = logging.WithComponent("tool_proxy")
	}
	return &Proxy{
		callTimeout: callTimeout,
		strictArgs:  strictArgs,
		logger:      logger,
	}
}

// Call invokes the tool behind h. Transport failures, cancellation and
// deadlines are returned as *errors.InvocationError; failures reported by the
// tool itself come back as a result with IsError set. No retries are made.
func (p *Proxy) Call(ctx context.Context, h *Handle, args map[string]any) (res *mcpclient.CallResult, err error) {
	if h == nil || h.Descriptor == nil || h.Connector == nil {
		return nil, fmt.Errorf("%w: invalid handle", errorskg.ErrToolNotFound)
	}

	ctx, span := telemetry.Start(ctx, "mcp.call_tool",
		attribute.String("mcp.server", h.Server),
		attribute.String("mcp.tool", h.Name()),
	)
	defer func() { telemetry.End(span, err) }()

	if args == nil {
		args = make(map[string]any)
	}
	if verr := h.Descriptor.ValidateArgs(args); verr != nil {
		if p.strictArgs {
			return nil, fmt.Errorf("%w for %s: %v", errorskg.ErrInvalidArguments, h.Name(), verr)
		}
		p.logger.Warn("tool arguments do not match input schema",
			"tool", h.Name(),
			"server", h.Server,
			"problem", verr.Error(),
		)
	}

	callCtx := ctx
	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err = h.Connector.CallTool(callCtx, h.RemoteName, args)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", errorskg.ErrTimeout, elapsed.Round(time.Millisecond), err)
		}
		p.logger.Warn("tool invocation failed",
			"tool", h.Name(),
			"server", h.Server,
			"elapsed", elapsed,
			"error", err,
		)
		return nil, &errorskg.InvocationError{Server: h.Server, Tool: h.Name(), Err: err}
	}

	span.SetAttributes(attribute.Bool("mcp.tool_error", res.IsError))
	p.logger.Debug("tool invoked",
		"tool", h.Name(),
		"server", h.Server,
		"elapsed", elapsed,
		"tool_error", res.IsError,
	)
	return res, nil
}
