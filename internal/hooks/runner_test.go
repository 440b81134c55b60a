package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/pkg/models"
)

func testRunner(t *testing.T) (*Runner, *[]*HandlerError) {
	t.Helper()
	var reported []*HandlerError
	r := NewRunner(nil, func(err *HandlerError) {
		reported = append(reported, err)
	})
	return r, &reported
}

func TestEmitRegistrationOrder(t *testing.T) {
	r, _ := testRunner(t)
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		r.On(EventTurnEnd, func(ctx context.Context, event *Event) error {
			order = append(order, i)
			return nil
		})
	}
	r.Emit(context.Background(), NewEvent(EventTurnEnd, "s1"))

	if len(order) != 5 {
		t.Fatalf("ran %d handlers, want 5", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Errorf("position %d ran handler %d", i, got)
		}
	}
}

func TestEmitIsolatesFailures(t *testing.T) {
	r, reported := testRunner(t)
	var ran []string

	r.On(EventTurnEnd, func(ctx context.Context, event *Event) error {
		ran = append(ran, "first")
		return errors.New("boom")
	})
	r.On(EventTurnEnd, func(ctx context.Context, event *Event) error {
		ran = append(ran, "second")
		panic("worse")
	})
	r.On(EventTurnEnd, func(ctx context.Context, event *Event) error {
		ran = append(ran, "third")
		return nil
	})
	r.Emit(context.Background(), NewEvent(EventTurnEnd, "s1"))

	if len(ran) != 3 {
		t.Fatalf("ran %d handlers, want all 3 despite failures", len(ran))
	}
	if len(*reported) != 2 {
		t.Errorf("reported %d errors, want 2", len(*reported))
	}
}

func TestEmitMutatingChain(t *testing.T) {
	r, _ := testRunner(t)

	r.OnMutating(EventChatSystemTransform, func(ctx context.Context, event *MutationEvent) (any, error) {
		return event.Output.(string) + " one", nil
	})
	r.OnMutating(EventChatSystemTransform, func(ctx context.Context, event *MutationEvent) (any, error) {
		return event.Output.(string) + " two", nil
	})

	out := r.EmitMutating(context.Background(), &MutationEvent{
		Type:   EventChatSystemTransform,
		Input:  "base",
		Output: "base",
	})
	if out != "base one two" {
		t.Errorf("chained output = %q, want %q", out, "base one two")
	}
}

func TestEmitMutatingDiscardsFailedMutation(t *testing.T) {
	r, reported := testRunner(t)

	r.OnMutating(EventChatSystemTransform, func(ctx context.Context, event *MutationEvent) (any, error) {
		return "good", nil
	})
	r.OnMutating(EventChatSystemTransform, func(ctx context.Context, event *MutationEvent) (any, error) {
		event.Output = "poisoned"
		return "also poisoned", errors.New("handler failed")
	})

	out := r.EmitMutating(context.Background(), &MutationEvent{
		Type:   EventChatSystemTransform,
		Input:  "base",
		Output: "base",
	})
	if out != "good" {
		t.Errorf("output = %q, want previous value %q retained", out, "good")
	}
	if len(*reported) != 1 {
		t.Errorf("reported %d errors, want 1", len(*reported))
	}
}

func TestEmitBeforeToolBlockShortCircuits(t *testing.T) {
	r, _ := testRunner(t)
	var thirdRan bool

	r.OnBeforeTool(func(ctx context.Context, event *BeforeToolEvent) (*BeforeToolDecision, error) {
		return nil, nil
	})
	r.OnBeforeTool(func(ctx context.Context, event *BeforeToolEvent) (*BeforeToolDecision, error) {
		return &BeforeToolDecision{Block: true, Reason: "not allowed"}, nil
	})
	r.OnBeforeTool(func(ctx context.Context, event *BeforeToolEvent) (*BeforeToolDecision, error) {
		thirdRan = true
		return nil, nil
	})

	decision := r.EmitBeforeTool(context.Background(), &BeforeToolEvent{
		ToolName: "bash",
		Input:    json.RawMessage(`{"command":"rm -rf /"}`),
	})
	if !decision.Block {
		t.Fatal("expected blocked decision")
	}
	if decision.Reason != "not allowed" {
		t.Errorf("Reason = %q", decision.Reason)
	}
	if thirdRan {
		t.Error("handler after the blocking one still ran")
	}
}

func TestEmitBeforeToolInputRewrite(t *testing.T) {
	r, _ := testRunner(t)
	var sawRewritten bool

	r.OnBeforeTool(func(ctx context.Context, event *BeforeToolEvent) (*BeforeToolDecision, error) {
		return &BeforeToolDecision{Input: json.RawMessage(`{"path":"safe.txt"}`)}, nil
	})
	r.OnBeforeTool(func(ctx context.Context, event *BeforeToolEvent) (*BeforeToolDecision, error) {
		sawRewritten = string(event.Input) == `{"path":"safe.txt"}`
		return nil, nil
	})

	decision := r.EmitBeforeTool(context.Background(), &BeforeToolEvent{
		ToolName: "read",
		Input:    json.RawMessage(`{"path":"secret.txt"}`),
	})
	if decision.Block {
		t.Fatal("unexpected block")
	}
	if string(decision.Input) != `{"path":"safe.txt"}` {
		t.Errorf("final input = %s", decision.Input)
	}
	if !sawRewritten {
		t.Error("later handler did not see the rewritten input")
	}
}

func TestEmitAfterToolLastRewriteWins(t *testing.T) {
	r, _ := testRunner(t)

	r.OnAfterTool(func(ctx context.Context, event *AfterToolEvent) (*models.ToolResult, error) {
		res := models.ToolResult{ToolCallID: event.ToolCallID, Content: []models.ContentPart{models.TextPart("first rewrite")}}
		return &res, nil
	})
	r.OnAfterTool(func(ctx context.Context, event *AfterToolEvent) (*models.ToolResult, error) {
		if event.Result.Text() != "first rewrite" {
			t.Errorf("second handler saw %q, want the first rewrite", event.Result.Text())
		}
		return nil, nil
	})
	r.OnAfterTool(func(ctx context.Context, event *AfterToolEvent) (*models.ToolResult, error) {
		res := models.ToolResult{ToolCallID: event.ToolCallID, Content: []models.ContentPart{models.TextPart("final")}}
		return &res, nil
	})

	result := r.EmitAfterTool(context.Background(), &AfterToolEvent{
		ToolCallID: "call-1",
		ToolName:   "read",
		Result:     models.ToolResult{ToolCallID: "call-1", Content: []models.ContentPart{models.TextPart("original")}},
	})
	if result.Text() != "final" {
		t.Errorf("final result = %q, want %q", result.Text(), "final")
	}
}

func TestEmitAfterToolSeesErrors(t *testing.T) {
	r, _ := testRunner(t)
	var sawError bool

	r.OnAfterTool(func(ctx context.Context, event *AfterToolEvent) (*models.ToolResult, error) {
		sawError = event.Result.IsError
		return nil, nil
	})

	result := r.EmitAfterTool(context.Background(), &AfterToolEvent{
		ToolCallID: "call-1",
		ToolName:   "edit",
		Result:     models.ErrorResult("call-1", "snippet not found"),
	})
	if !sawError {
		t.Error("after-hook did not observe IsError")
	}
	if !result.IsError {
		t.Error("result lost its error flag")
	}
}

func TestInitializeOnce(t *testing.T) {
	r, _ := testRunner(t)

	deps := Deps{
		Send:        func(string) error { return nil },
		SendMessage: func(*models.Message, bool) error { return nil },
		AppendEntry: func(string, []byte) {},
	}
	if err := r.Initialize(deps); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}
	if err := r.Initialize(deps); err == nil {
		t.Fatal("second Initialize succeeded, want error")
	}
}

func TestRegisterToolDuplicate(t *testing.T) {
	r, _ := testRunner(t)

	def := tools.Definition{Name: "custom", InputSchema: json.RawMessage(`{"type":"object"}`)}
	if err := r.RegisterTool(def); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := r.RegisterTool(def); err == nil {
		t.Fatal("duplicate registration succeeded")
	}
	regs := r.RegisteredTools()
	if len(regs) != 1 || regs[0].Name != "custom" {
		t.Errorf("RegisteredTools() = %v", regs)
	}
}

func TestCommandRegistry(t *testing.T) {
	r, _ := testRunner(t)

	err := r.RegisterCommand(Command{
		Name: "summarize",
		Run: func(ctx context.Context, args string) (string, error) {
			return "summary of " + args, nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterCommand failed: %v", err)
	}

	cmd, ok := r.Command("summarize")
	if !ok {
		t.Fatal("command not found")
	}
	out, err := cmd.Run(context.Background(), "history")
	if err != nil || out != "summary of history" {
		t.Errorf("Run = (%q, %v)", out, err)
	}
	if _, ok := r.Command("missing"); ok {
		t.Error("unknown command reported as found")
	}
}
