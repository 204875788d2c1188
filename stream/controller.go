package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"goa.design/clue/log"

	"github.com/genui/genui/images"
	"github.com/genui/genui/model"
	"github.com/genui/genui/session"
	"github.com/genui/genui/tools"
	"github.com/genui/genui/ui"
)

// DefaultSystemPrompt instructs the model to answer with a renderable
// component array. Deployments override it with their own prompt file.
const DefaultSystemPrompt = `You are a UI generator. Respond ONLY with a JSON array of UI components, no prose before or after.
Each component is {"type": <type>, "props": {...}}.
Supported types: text, heading, button, image, borderImage, list-item, divider.
Props: "content" (string payload), "ID" (stable identifier), "columns" (layout width: "2", "3" or "6").
For image, borderImage and list-item components, set "content" to a short visual description; the server attaches the image itself.
Emit components one after another so they can be rendered as they arrive.`

// DefaultUserPrefix frames the raw prompt for the model.
const DefaultUserPrefix = "Generate UI components for the following request: "

// overloadedMessage is the error envelope text for provider overload.
const overloadedMessage = "Model overloaded"

// failedMessage is the error envelope text for all other upstream failures.
const failedMessage = "Failed to generate content."

type (
	// Controller orchestrates one session stream per Generate call: it
	// builds the context window, opens the model stream, delegates to the
	// multiplexer, sequences the tool and continuation phases and implements
	// the failure-to-client contract. A single Controller serves all
	// sessions; per-request state lives in the dispatcher and multiplexer it
	// creates.
	Controller struct {
		mu        sync.RWMutex
		modelName string

		anthropic model.Client
		openai    model.Client

		system     string
		userPrefix string
		maxTokens  int

		gateway  *tools.Gateway
		store    session.Store
		sessions session.Counter

		generator images.Generator
		assets    *images.Store
		hub       *images.Hub
	}

	// ControllerOptions configures a Controller.
	ControllerOptions struct {
		// Anthropic serves claude-* model names. At least one of Anthropic
		// and OpenAI is required.
		Anthropic model.Client
		// OpenAI serves every other model name.
		OpenAI model.Client
		// Model is the initial model name.
		Model string
		// System overrides DefaultSystemPrompt when non-empty.
		System string
		// UserPrefix overrides DefaultUserPrefix when non-empty.
		UserPrefix string
		// MaxTokens caps completion length. Zero uses the adapter default.
		MaxTokens int
		// Gateway exposes tools to the model. Nil disables tool use.
		Gateway *tools.Gateway
		// Store persists session turns. Nil uses an in-process store.
		Store session.Store
		// Generator produces image assets. Nil attaches the fallback URL.
		Generator images.Generator
		// Assets records generated asset URLs. Optional.
		Assets *images.Store
		// Hub broadcasts image-ready events. Optional.
		Hub *images.Hub
	}
)

// NewController builds a session controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Anthropic == nil && opts.OpenAI == nil {
		return nil, errors.New("at least one model client is required")
	}
	c := &Controller{
		modelName:  opts.Model,
		anthropic:  opts.Anthropic,
		openai:     opts.OpenAI,
		system:     opts.System,
		userPrefix: opts.UserPrefix,
		maxTokens:  opts.MaxTokens,
		gateway:    opts.Gateway,
		store:      opts.Store,
		generator:  opts.Generator,
		assets:     opts.Assets,
		hub:        opts.Hub,
	}
	if c.system == "" {
		c.system = DefaultSystemPrompt
	}
	if c.userPrefix == "" {
		c.userPrefix = DefaultUserPrefix
	}
	if c.store == nil {
		c.store = session.NewMemoryStore()
	}
	if c.modelName == "" {
		if opts.Anthropic != nil {
			c.modelName = "claude-sonnet-4-20250514"
		} else {
			c.modelName = "gpt-4o-mini"
		}
	}
	if _, err := c.clientFor(c.modelName); err != nil {
		return nil, err
	}
	return c, nil
}

// Model returns the current model name.
func (c *Controller) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelName
}

// SetModel switches the model used by subsequent sessions. claude-* names
// route to the Anthropic client, everything else to OpenAI.
func (c *Controller) SetModel(name string) error {
	if name == "" {
		return errors.New("model name is required")
	}
	if _, err := c.clientFor(name); err != nil {
		return err
	}
	c.mu.Lock()
	c.modelName = name
	c.mu.Unlock()
	return nil
}

func (c *Controller) clientFor(name string) (model.Client, error) {
	if strings.HasPrefix(name, "claude") {
		if c.anthropic == nil {
			return nil, fmt.Errorf("model %q requires an anthropic client", name)
		}
		return c.anthropic, nil
	}
	if c.openai == nil {
		return nil, fmt.Errorf("model %q requires an openai client", name)
	}
	return c.openai, nil
}

// ButtonPrompt frames a clicked button's label as a generation prompt.
func ButtonPrompt(content string) string {
	return "The user clicked the button that says: \"" + content + "\". Generate a new UI based on this button click."
}

// Generate runs one complete session: primary stream, optional tool phase
// and continuation, terminal sentinel, session persistence. Events are
// written to sink; the error return reports transport-level failures only,
// after the failure contract has been applied.
func (c *Controller) Generate(ctx context.Context, prompt string, sink Sink) error {
	if prompt == "" {
		return errors.New("prompt is required")
	}

	c.mu.RLock()
	name := c.modelName
	c.mu.RUnlock()
	client, err := c.clientFor(name)
	if err != nil {
		return c.fail(ctx, sink, err)
	}

	id := c.sessions.Next()
	turns, err := c.store.Window(ctx, id, session.WindowSize)
	if err != nil {
		// Continuity is best-effort; a fresh window still yields a usable
		// response.
		log.Errorf(ctx, err, "load session window %d", id)
		turns = nil
	}

	user := c.userPrefix + prompt
	msgs := append(session.Messages(turns), model.Text(model.RoleUser, user))
	req := model.Request{
		Model:     name,
		System:    c.system,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	}
	if c.gateway != nil {
		req.Tools = c.gateway.Definitions()
	}

	streamer, err := client.Stream(ctx, req)
	if err != nil {
		return c.fail(ctx, sink, err)
	}

	d := NewDispatcher(c.generator, c.assets, c.hub)
	m := newMultiplexer(d, sink)
	res, err := m.run(ctx, streamer)
	if err != nil {
		return c.fail(ctx, sink, err)
	}

	full := res.fullText
	if res.tool != nil {
		contText, err := c.runTool(ctx, sink, d, client, req, res.tool)
		if err != nil {
			return c.fail(ctx, sink, err)
		}
		full += contText
	}

	if err := sink.End(ctx); err != nil {
		log.Errorf(ctx, err, "end stream")
	}

	turn := session.Turn{User: user, Assistant: full}
	if err := c.store.Save(ctx, id+1, turn); err != nil {
		log.Errorf(ctx, err, "save session turn %d", id+1)
	}
	return nil
}

// runTool executes the stream's tool invocation and drives the continuation
// stream carrying its result. Tool failures are absorbed here: the client
// sees an error component and the session still terminates normally. The
// error return is reserved for transport-level failures.
func (c *Controller) runTool(ctx context.Context, sink Sink, d *Dispatcher, client model.Client, req model.Request, inv *toolInvocation) (string, error) {
	args := json.RawMessage(inv.args.String())
	result, invokeErr := c.gatewayInvoke(ctx, inv.Name, args)

	if err := sink.Send(ctx, ui.Remove{ID: loadingID(inv.Name)}); err != nil {
		return "", err
	}

	if invokeErr != nil {
		log.Errorf(ctx, invokeErr, "tool %q failed", inv.Name)
		errComp := ui.NewText(
			"Sorry, I couldn't complete that search right now. Please try again later.",
			inv.Name+"-error", loadingColumns,
		)
		if err := sink.Send(ctx, errComp); err != nil {
			return "", err
		}
		return "", nil
	}

	// Replay the tool call and inject its result, then let the model render
	// the final components without tools.
	msgs := slices.Clone(req.Messages)
	msgs = append(msgs,
		&model.Message{Role: model.RoleAssistant, Parts: []model.Part{
			model.TextPart{Text: "I'll look that up."},
			model.ToolUsePart{ID: inv.ID, Name: inv.Name, Input: args},
		}},
		&model.Message{Role: model.RoleUser, Parts: []model.Part{
			model.ToolResultPart{ToolUseID: inv.ID, Content: result.Prompt},
		}},
	)
	cont := req
	cont.Messages = msgs
	cont.Tools = nil

	streamer, err := client.Stream(ctx, cont)
	if err != nil {
		return "", err
	}
	res, err := newMultiplexer(d, sink).run(ctx, streamer)
	if err != nil {
		return "", err
	}
	return res.fullText, nil
}

func (c *Controller) gatewayInvoke(ctx context.Context, name string, args json.RawMessage) (tools.Result, error) {
	if c.gateway == nil {
		return tools.Result{}, fmt.Errorf("no gateway configured for tool %q", name)
	}
	return c.gateway.Invoke(ctx, name, args)
}

// fail applies the failure-to-client contract: on a pristine channel emit a
// single error envelope plus the terminal sentinel; once output has been
// sent, log only and let the client observe the closed channel.
func (c *Controller) fail(ctx context.Context, sink Sink, err error) error {
	if sink.Sent() {
		log.Errorf(ctx, err, "stream failed after output was sent")
		return err
	}
	log.Errorf(ctx, err, "stream failed before any output")
	msg := failedMessage
	if errors.Is(err, model.ErrOverloaded) {
		msg = overloadedMessage
	}
	if serr := sink.Send(ctx, ui.ErrorMessage{Message: msg}); serr != nil {
		log.Errorf(ctx, serr, "send error envelope")
		return err
	}
	if eerr := sink.End(ctx); eerr != nil {
		log.Errorf(ctx, eerr, "end stream")
	}
	return err
}
