// Package bridge exposes device actions over MQTT so home automation
// controllers can discover and run them without an MCP client.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jamesprial/nut-mcp/internal/action"
	"github.com/jamesprial/nut-mcp/internal/nut"
	"github.com/jamesprial/nut-mcp/internal/safety"
	"github.com/jamesprial/nut-mcp/internal/tools"
)

const (
	qos          byte = 1
	tokenTimeout      = 5 * time.Second
	callTimeout       = 30 * time.Second
	auditTool         = "mqtt_action_call"
)

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

var _ Client = mqtt.Client(nil)

// Actions is the device-action service the bridge drives.
type Actions interface {
	ListActions(deviceID string) []action.ActionRef
	ValidateConfig(raw map[string]any) (action.Config, error)
	CallAction(ctx context.Context, cfg action.Config, variables map[string]any, actx *action.Context) error
}

// Guard reports which commands need an interactive confirmation. The bridge
// has no way to ask for one, so it refuses those commands.
type Guard interface {
	NeedsConfirmation(command string) bool
}

// Result is published after every call request.
type Result struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// Bridge publishes action lists and serves call requests on MQTT topics
// rooted at a prefix:
//
//	<prefix>/<device_id>/actions        retained action list
//	<prefix>/<device_id>/action/call    call requests (JSON action config)
//	<prefix>/<device_id>/action/result  call results
type Bridge struct {
	client  Client
	actions Actions
	prefix  string
	audit   *safety.AuditLogger
	guard   Guard
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithGuard refuses calls of commands for which g requires confirmation.
func WithGuard(g Guard) Option {
	return func(b *Bridge) { b.guard = g }
}

// New returns a Bridge. audit may be nil.
func New(client Client, actions Actions, prefix string, audit *safety.AuditLogger, opts ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		actions: actions,
		prefix:  strings.TrimSuffix(prefix, "/"),
		audit:   audit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect opens a paho client to broker.
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if err := wait(client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", broker, err)
	}
	return client, nil
}

// Start subscribes to call requests. Calls run with a context derived from
// ctx.
func (b *Bridge) Start(ctx context.Context) error {
	topic := b.prefix + "/+/action/call"
	if err := wait(b.client.Subscribe(topic, qos, b.callHandler(ctx))); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	log.Printf("mqtt bridge listening on %s", topic)
	return nil
}

// PublishActions publishes the retained action list of deviceID.
func (b *Bridge) PublishActions(deviceID string) error {
	payload, err := json.Marshal(b.actions.ListActions(deviceID))
	if err != nil {
		return fmt.Errorf("encode actions of %s: %w", deviceID, err)
	}
	topic := b.prefix + "/" + deviceID + "/actions"
	if err := wait(b.client.Publish(topic, qos, true, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishAll publishes the action list of every device, returning the
// combined errors.
func (b *Bridge) PublishAll(deviceIDs []string) error {
	var errs []error
	for _, id := range deviceIDs {
		if err := b.PublishActions(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bridge) callHandler(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		deviceID, ok := b.deviceFromTopic(msg.Topic())
		if !ok {
			log.Printf("mqtt bridge: ignoring message on %s", msg.Topic())
			return
		}
		res := b.call(ctx, deviceID, msg.Payload())
		b.publishResult(deviceID, res)
	}
}

func (b *Bridge) call(ctx context.Context, deviceID string, payload []byte) (res Result) {
	start := time.Now()
	var raw map[string]any
	defer func() {
		rec := tools.AuditRecord{Tool: auditTool, ContextID: res.ContextID, DeviceID: deviceID, Params: raw, Result: "ok"}
		if res.Type != "" {
			rec.Command = nut.CommandName(res.Type)
		}
		if !res.OK {
			rec.Result = "error: " + res.Error
		}
		tools.LogAudit(b.audit, rec, start)
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("mqtt bridge: panic serving %s: %v", deviceID, r)
			res = Result{Type: res.Type, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		return Result{Error: "payload must be a JSON object"}
	}
	raw[action.KeyDeviceID] = deviceID
	if _, ok := raw[action.KeyDomain]; !ok {
		raw[action.KeyDomain] = action.Domain
	}
	actionType, _ := raw[action.KeyType].(string)

	res.Type = actionType

	cfg, err := b.actions.ValidateConfig(raw)
	if err != nil {
		return Result{Type: actionType, Error: err.Error()}
	}
	if command := nut.CommandName(cfg.Type); b.guard != nil && b.guard.NeedsConfirmation(command) {
		return Result{Type: cfg.Type, Error: fmt.Sprintf("command %s requires confirmation and is not allowed over mqtt", command)}
	}

	actx := action.NewContext("")
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := b.actions.CallAction(cctx, cfg, nil, actx); err != nil {
		return Result{Type: cfg.Type, ContextID: actx.ID, Error: err.Error()}
	}
	return Result{Type: cfg.Type, ContextID: actx.ID, OK: true}
}

func (b *Bridge) publishResult(deviceID string, res Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		log.Printf("mqtt bridge: encode result: %v", err)
		return
	}
	topic := b.prefix + "/" + deviceID + "/action/result"
	if err := wait(b.client.Publish(topic, qos, false, payload)); err != nil {
		log.Printf("mqtt bridge: publish %s: %v", topic, err)
	}
}

// deviceFromTopic extracts the device id from <prefix>/<device_id>/action/call.
func (b *Bridge) deviceFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", false
	}
	deviceID, ok := strings.CutSuffix(rest, "/action/call")
	if !ok || deviceID == "" || strings.Contains(deviceID, "/") {
		return "", false
	}
	return deviceID, true
}

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(tokenTimeout) {
		return errors.New("timed out")
	}
	return token.Error()
}
