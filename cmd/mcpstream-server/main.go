// Command mcpstream-server hosts a StreamableHTTPServerTransport behind a
// gorilla/mux router, wiring the transport into a minimal MCP-shaped
// request handler for manual testing and as a worked example of embedding
// the transport in a host application (SPEC_FULL.md section 10).
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kalvera/mcpstream/jsonrpc"
	"github.com/kalvera/mcpstream/logging"
	"github.com/kalvera/mcpstream/server"
	"github.com/kalvera/mcpstream/transport"
)

var cli struct {
	Addr                         string `default:":8080" help:"address to listen on"`
	Path                         string `default:"/mcp" help:"endpoint path the transport is mounted on"`
	Stateless                    bool   `default:"false" help:"disable session management (no SessionIDGenerator)"`
	EnableDNSRebindingProtection bool   `default:"false" help:"reject requests with unrecognized Host/Origin headers"`
	AllowedHosts                 []string `help:"Host header values accepted when DNS-rebinding protection is on"`
	AllowedOrigins               []string `help:"Origin header values accepted when DNS-rebinding protection is on"`
}

// echoConsumer answers "initialize" and "ping" directly and reports
// everything else as method-not-found, enough to exercise a full
// request/response round trip without a real MCP method catalog.
type echoConsumer struct {
	log    logging.Logger
	sender interface {
		Send(msg interface{}, opts *transport.SendOptions) error
	}
}

func (c *echoConsumer) OnMessage(msg jsonrpc.RawMessage, extra transport.ExtraInfo) {
	method, hasMethod := msg.Method()
	if !hasMethod {
		return
	}
	id, hasID := msg.ID()
	if !hasID {
		c.log.Info("received notification", logging.Fields{"method": method})
		return
	}

	var result json.RawMessage
	var rpcErr *jsonrpc.Error
	switch method {
	case jsonrpc.MethodInitialize:
		result, _ = json.Marshal(map[string]interface{}{
			"protocolVersion": server.DefaultProtocolVersion,
			"serverInfo":      map[string]string{"name": "mcpstream-server", "version": "0.1.0"},
		})
	case "ping":
		result, _ = json.Marshal(map[string]interface{}{})
	default:
		rpcErr = jsonrpc.NewError(jsonrpc.ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", method), nil)
	}

	var outbound interface{}
	if rpcErr != nil {
		outbound = jsonrpc.NewErrorResponse(id, rpcErr)
	} else {
		outbound = jsonrpc.NewResponse(id, result)
	}
	if err := c.sender.Send(outbound, nil); err != nil {
		c.log.Error("failed to send response", logging.Fields{"method": method, "error": err.Error()})
	}
}

func (c *echoConsumer) OnError(err error) {
	c.log.Error("transport error", logging.Fields{"error": err.Error()})
}

func (c *echoConsumer) OnClose() {
	c.log.Info("session closed", nil)
}

func main() {
	kong.Parse(&cli)

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zapLogger.Sync()
	appLog := logging.NewZap(zapLogger.Sugar())

	consumer := &echoConsumer{log: appLog}

	opts := server.Options{
		Logger:                       appLog,
		EnableDNSRebindingProtection: cli.EnableDNSRebindingProtection,
		AllowedHosts:                 toSet(cli.AllowedHosts),
		AllowedOrigins:               toSet(cli.AllowedOrigins),
	}
	if !cli.Stateless {
		opts.SessionIDGenerator = func() string { return uuid.New().String() }
	}

	tr := server.NewStreamableHTTPServerTransport(opts, consumer)
	consumer.sender = tr
	if err := tr.Start(); err != nil {
		log.Fatalf("start transport: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc(cli.Path, tr.HandleRequest)

	appLog.Info("listening", logging.Fields{"addr": cli.Addr, "path": cli.Path})
	if err := http.ListenAndServe(cli.Addr, router); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
