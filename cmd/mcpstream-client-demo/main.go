// Command mcpstream-client-demo drives a StreamableHTTPClientTransport
// against a server endpoint, sending an initialize request and then a
// handful of pings. Start is retried with exponential backoff while the
// server is not yet reachable; a standalone SSE listener that the server
// closes later is not reopened.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/kalvera/mcpstream/client"
	"github.com/kalvera/mcpstream/jsonrpc"
	"github.com/kalvera/mcpstream/logging"
	"github.com/kalvera/mcpstream/transport"
)

var cli struct {
	URL     string        `default:"http://localhost:8080/mcp" help:"server endpoint to connect to"`
	Pings   int           `default:"3" help:"number of ping requests to send after initialize"`
	Timeout time.Duration `default:"10s" help:"per-request timeout"`
}

// printingConsumer logs every inbound message that carries a method, every
// error, and the close event; replies are not logged but handed to a
// channel so main can wait for round trips.
type printingConsumer struct {
	log     logging.Logger
	replies chan jsonrpc.RawMessage
}

func (c *printingConsumer) OnMessage(msg jsonrpc.RawMessage, _ transport.ExtraInfo) {
	if method, ok := msg.Method(); ok {
		c.log.Info("received notification", logging.Fields{"method": method})
		return
	}
	select {
	case c.replies <- msg:
	default:
	}
}

func (c *printingConsumer) OnError(err error) {
	c.log.Error("transport error", logging.Fields{"error": err.Error()})
}

func (c *printingConsumer) OnClose() {
	c.log.Info("connection closed", nil)
}

func main() {
	kong.Parse(&cli)

	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zapLogger.Sync()
	appLog := logging.NewZap(zapLogger.Sugar())
	consumer := &printingConsumer{log: appLog, replies: make(chan jsonrpc.RawMessage, 1)}
	transportClient := client.NewStreamableHTTPClientTransport(cli.URL, client.Options{Logger: appLog}, consumer)

	ctx := context.Background()
	startWithBackoff(ctx, transportClient, appLog)
	defer transportClient.Close()

	if err := sendAndAwait(ctx, transportClient, consumer, jsonrpc.RawMessage{
		"jsonrpc": mustRaw("2.0"),
		"id":      mustRaw(1),
		"method":  mustRaw(jsonrpc.MethodInitialize),
		"params":  mustRaw(map[string]interface{}{}),
	}); err != nil {
		log.Fatalf("initialize: %v", err)
	}
	appLog.Info("initialized", logging.Fields{"sessionID": transportClient.SessionID()})

	for i := 0; i < cli.Pings; i++ {
		req := jsonrpc.RawMessage{
			"jsonrpc": mustRaw("2.0"),
			"id":      mustRaw(i + 2),
			"method":  mustRaw("ping"),
		}
		if err := sendAndAwait(ctx, transportClient, consumer, req); err != nil {
			appLog.Error("ping failed", logging.Fields{"error": err.Error()})
			continue
		}
		appLog.Info("ping ok", logging.Fields{"n": i})
	}
}

// startWithBackoff retries Start against a server that may not be up yet,
// using an exponential backoff policy rather than a fixed retry loop.
func startWithBackoff(ctx context.Context, c *client.StreamableHTTPClientTransport, log logging.Logger) {
	operation := func() (struct{}, error) {
		if err := c.Start(ctx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
	if err != nil {
		log.Error("giving up connecting", logging.Fields{"error": err.Error()})
	}
}

func sendAndAwait(ctx context.Context, c *client.StreamableHTTPClientTransport, consumer *printingConsumer, req jsonrpc.RawMessage) error {
	sendCtx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()
	if err := c.Send(sendCtx, jsonrpc.Batch{req}); err != nil {
		return err
	}
	select {
	case reply := <-consumer.replies:
		if reply.HasError() {
			raw, _ := reply.Marshal()
			return fmt.Errorf("server returned an error: %s", raw)
		}
		return nil
	case <-sendCtx.Done():
		return sendCtx.Err()
	}
}

func mustRaw(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
