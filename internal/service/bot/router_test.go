package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/sandevgo/botstudio/internal/core"
	"github.com/sandevgo/botstudio/internal/service/generator"
	"github.com/sandevgo/botstudio/internal/service/safety"
)

type invocation struct {
	input string
	opts  generator.Options
}

type stubGenerator struct {
	id          string
	respond     func(input string) string
	usage       core.Usage
	err         error
	aiMessageID int64
	calls       []invocation
}

func (g *stubGenerator) ID() string { return g.id }

func (g *stubGenerator) AIMessageID() int64 { return g.aiMessageID }

func (g *stubGenerator) Invoke(ctx context.Context, input string, opts generator.Options) (core.InvocationResult, error) {
	g.calls = append(g.calls, invocation{input: input, opts: opts})
	if g.err != nil {
		return core.InvocationResult{}, g.err
	}
	output := input
	if g.respond != nil {
		output = g.respond(input)
	}
	return core.InvocationResult{
		Output:           output,
		PromptTokens:     g.usage.PromptTokens,
		CompletionTokens: g.usage.CompletionTokens,
		ProcessorID:      g.id,
	}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Emit(ctx context.Context, name string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type verdictProvider struct {
	verdict string
}

func (p verdictProvider) Generate(ctx context.Context, messages []core.Message, tools []core.Tool) (core.Message, core.Usage, error) {
	return core.Message{Role: core.RoleAssistant, Content: p.verdict}, core.Usage{PromptTokens: 2, CompletionTokens: 1}, nil
}

func humanFilter(verdict, fallbackResponse string) *safety.Filter {
	return safety.NewFilter(safety.LayerSpec{
		ID:               "human-layer",
		Prompt:           "review",
		Reviews:          core.MessageTypeHuman,
		FallbackResponse: fallbackResponse,
	}, verdictProvider{verdict: verdict}, "")
}

func aiFilter(verdict, fallbackResponse string) *safety.Filter {
	return safety.NewFilter(safety.LayerSpec{
		ID:               "ai-layer",
		Prompt:           "review",
		Reviews:          core.MessageTypeAI,
		FallbackResponse: fallbackResponse,
	}, verdictProvider{verdict: verdict}, "")
}

// Scenario: a lone primary bot that doubles numeric input.
func TestProcessInput_PrimaryOnly(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{
		id: "doubler",
		respond: func(input string) string {
			n, _ := strconv.Atoi(input)
			return strconv.Itoa(n * 2)
		},
		aiMessageID: 42,
	}
	sink := &recordingSink{}

	router, err := NewRouter(BotSpec{Primary: primary}, nil, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "2", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != "4" {
		t.Errorf("expected 4, got %q", output)
	}
	if len(primary.calls) != 1 {
		t.Errorf("no routing call expected without routes, got %d invocations", len(primary.calls))
	}
	call := primary.calls[0]
	if !call.opts.SaveInputToHistory || !call.opts.SaveOutputToHistory || !call.opts.IncludeHistory {
		t.Errorf("main call must honor default save flags: %+v", call.opts)
	}
	if router.AIMessageID() != 42 {
		t.Errorf("AIMessageID not exposed: %d", router.AIMessageID())
	}
	if names := sink.names(); len(names) != 1 || names[0] != core.EventNewBotMessage {
		t.Errorf("expected a single new_bot_message event, got %v", names)
	}
}

// Scenario: a human safety layer blocks the input before any generation.
func TestProcessInput_HumanSafetyShortCircuits(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "primary"}
	sink := &recordingSink{}

	router, err := NewRouter(BotSpec{
		Primary: primary,
		Filters: []*safety.Filter{humanFilter("unsafe: self harm", "Let me connect you with a human.")},
	}, nil, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "bad input", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != "Let me connect you with a human." {
		t.Errorf("expected the configured fallback, got %q", output)
	}
	if len(primary.calls) != 0 {
		t.Errorf("the primary must never be invoked on a blocked input, got %d calls", len(primary.calls))
	}
	names := sink.names()
	if len(names) != 2 || names[0] != core.EventHumanSafetyTriggered || names[1] != core.EventNewBotMessage {
		t.Errorf("unexpected events: %v", names)
	}
}

func TestProcessInput_DefaultFallbackResponse(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "primary"}

	router, err := NewRouter(BotSpec{
		Primary: primary,
		Filters: []*safety.Filter{humanFilter("unsafe", "")},
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "bad", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != safety.DefaultFallbackResponse {
		t.Errorf("expected the default apology, got %q", output)
	}
}

func TestProcessInput_FallbackPromptGeneratesResponse(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{
		id:          "primary",
		respond:     func(string) string { return "I cannot help with that." },
		aiMessageID: 5,
	}

	filter := safety.NewFilter(safety.LayerSpec{
		ID:             "human-layer",
		Prompt:         "review",
		Reviews:        core.MessageTypeHuman,
		FallbackPrompt: "Politely decline the request.",
	}, verdictProvider{verdict: "unsafe"}, "")

	router, err := NewRouter(BotSpec{Primary: primary, Filters: []*safety.Filter{filter}}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "bad input", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != "I cannot help with that." {
		t.Errorf("expected a generated fallback, got %q", output)
	}
	if len(primary.calls) != 1 {
		t.Fatalf("expected one fallback generation, got %d", len(primary.calls))
	}
	call := primary.calls[0]
	if call.input != "Politely decline the request." {
		t.Errorf("fallback must use the configured prompt: %q", call.input)
	}
	if call.opts.SaveInputToHistory {
		t.Error("the triggering input must never be persisted")
	}
	if !call.opts.SaveOutputToHistory {
		t.Error("the fallback response is persisted")
	}
	if router.AIMessageID() != 5 {
		t.Errorf("AIMessageID must reflect the fallback message: %d", router.AIMessageID())
	}
}

// Scenario: unrecognized routing keyword falls back to the default child.
func TestProcessInput_UnrecognizedKeywordUsesDefault(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "router-bot", respond: func(string) string { return "SHIPPING" }}
	billing := &stubGenerator{id: "billing-bot", respond: func(string) string { return "from billing" }}
	support := &stubGenerator{id: "support-bot", respond: func(string) string { return "from support" }}

	router, err := NewRouter(BotSpec{
		Primary: primary,
		Routes: []Route{
			{Keyword: "billing", Generator: billing},
			{Keyword: "support", Default: true, Generator: support},
		},
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "where is my order?", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != "from support" {
		t.Errorf("expected the default child to answer, got %q", output)
	}
	if len(billing.calls) != 0 {
		t.Error("billing child must not be invoked")
	}

	// The routing-decision call never touches history.
	if len(primary.calls) != 1 {
		t.Fatalf("expected exactly one routing call, got %d", len(primary.calls))
	}
	routingOpts := primary.calls[0].opts
	if routingOpts.SaveInputToHistory || routingOpts.SaveOutputToHistory {
		t.Errorf("routing call must not persist anything: %+v", routingOpts)
	}
}

func TestProcessInput_KeywordRoutingNormalizes(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "router-bot", respond: func(string) string { return "  Billing \n" }}
	billing := &stubGenerator{id: "billing-bot", respond: func(string) string { return "from billing" }}
	support := &stubGenerator{id: "support-bot", respond: func(string) string { return "from support" }}

	router, err := NewRouter(BotSpec{
		Primary: primary,
		Routes: []Route{
			{Keyword: "Billing", Generator: billing},
			{Keyword: "support", Default: true, Generator: support},
		},
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "invoice question", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "from billing" {
		t.Errorf("keyword matching must be case-insensitive, got %q", output)
	}
	if len(billing.calls) != 1 || billing.calls[0].input != "invoice question" {
		t.Errorf("child must receive the real input: %+v", billing.calls)
	}
}

func TestProcessInput_TerminalOwnsPersistedAnswer(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "primary", respond: func(string) string { return "draft" }}
	terminal := &stubGenerator{id: "terminal", respond: func(input string) string { return "polished " + input }, aiMessageID: 9}

	router, err := NewRouter(BotSpec{Primary: primary, Terminal: terminal}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "question", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output != "polished draft" {
		t.Errorf("unexpected output: %q", output)
	}
	mainOpts := primary.calls[0].opts
	if mainOpts.SaveOutputToHistory {
		t.Error("main stage must not save its output when a terminal generator exists")
	}
	if !mainOpts.SaveInputToHistory {
		t.Error("main stage still saves the user input")
	}
	terminalOpts := terminal.calls[0].opts
	if terminalOpts.SaveInputToHistory || terminalOpts.IncludeHistory {
		t.Errorf("terminal stage must not re-save input nor see history: %+v", terminalOpts)
	}
	if !terminalOpts.SaveOutputToHistory {
		t.Error("terminal stage owns the persisted answer")
	}
	if router.AIMessageID() != 9 {
		t.Errorf("AIMessageID must come from the terminal stage: %d", router.AIMessageID())
	}
}

func TestProcessInput_AISafetyReplacesOutput(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "primary", respond: func(string) string { return "rude answer" }}
	sink := &recordingSink{}

	router, err := NewRouter(BotSpec{
		Primary: primary,
		Filters: []*safety.Filter{aiFilter("unsafe", "Let me rephrase that.")},
	}, nil, sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "hi", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "Let me rephrase that." {
		t.Errorf("unsafe output must be replaced, got %q", output)
	}
	names := sink.names()
	if len(names) != 2 || names[0] != core.EventBotSafetyTriggered {
		t.Errorf("unexpected events: %v", names)
	}
}

func TestProcessInput_AggregatesUsageAcrossCalls(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{
		id:      "router-bot",
		respond: func(string) string { return "billing" },
		usage:   core.Usage{PromptTokens: 10, CompletionTokens: 1},
	}
	billing := &stubGenerator{
		id:      "billing-bot",
		respond: func(string) string { return "answer" },
		usage:   core.Usage{PromptTokens: 20, CompletionTokens: 7},
	}
	terminal := &stubGenerator{
		id:      "terminal",
		respond: func(input string) string { return input },
		usage:   core.Usage{PromptTokens: 5, CompletionTokens: 2},
	}

	router, err := NewRouter(BotSpec{
		Primary:  primary,
		Routes:   []Route{{Keyword: "billing", Default: true, Generator: billing}},
		Terminal: terminal,
		// Each classification costs 2 prompt + 1 completion tokens.
		Filters: []*safety.Filter{humanFilter("safe", ""), aiFilter("safe", "")},
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := router.ProcessInput(ctx, "hi", DefaultProcessOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	usage := router.Usage()
	wantPrompt := 10 + 20 + 5 + 2 + 2
	wantCompletion := 1 + 7 + 2 + 1 + 1
	if usage.PromptTokens != wantPrompt || usage.CompletionTokens != wantCompletion {
		t.Errorf("expected %d/%d tokens, got %d/%d", wantPrompt, wantCompletion, usage.PromptTokens, usage.CompletionTokens)
	}
}

func TestProcessInput_GenerationErrorPropagates(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "primary", err: &core.GenerationError{Message: "remote down"}}

	router, err := NewRouter(BotSpec{Primary: primary}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = router.ProcessInput(ctx, "hi", DefaultProcessOptions())
	var genErr *core.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

func TestNewRouter_Validation(t *testing.T) {
	primary := &stubGenerator{id: "primary"}

	tests := []struct {
		name string
		spec BotSpec
	}{
		{name: "missing_primary", spec: BotSpec{}},
		{name: "empty_keyword", spec: BotSpec{Primary: primary, Routes: []Route{{Keyword: "  ", Generator: primary}}}},
		{name: "duplicate_keyword", spec: BotSpec{Primary: primary, Routes: []Route{
			{Keyword: "a", Generator: primary},
			{Keyword: "A", Generator: primary},
		}}},
		{name: "nil_route_generator", spec: BotSpec{Primary: primary, Routes: []Route{{Keyword: "a"}}}},
		{name: "two_defaults", spec: BotSpec{Primary: primary, Routes: []Route{
			{Keyword: "a", Default: true, Generator: primary},
			{Keyword: "b", Default: true, Generator: primary},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter(tt.spec, nil, nil)
			var chatErr *core.ChatError
			if !errors.As(err, &chatErr) {
				t.Errorf("expected ChatError, got %v", err)
			}
		})
	}
}

func TestNewRouter_FirstRouteIsDefaultWhenUnflagged(t *testing.T) {
	ctx := context.Background()
	primary := &stubGenerator{id: "router-bot", respond: func(string) string { return "nonsense" }}
	first := &stubGenerator{id: "first", respond: func(string) string { return "from first" }}
	second := &stubGenerator{id: "second", respond: func(string) string { return "from second" }}

	router, err := NewRouter(BotSpec{
		Primary: primary,
		Routes: []Route{
			{Keyword: "one", Generator: first},
			{Keyword: "two", Generator: second},
		},
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output, err := router.ProcessInput(ctx, "hi", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "from first" {
		t.Errorf("first route should be the implicit default, got %q", output)
	}
}
