// Package prebuilt ships ready-made graph templates over package pregel, the
// way the original framework distributes a create_react_agent helper instead
// of asking every caller to wire the same agent/tools loop by hand.
package prebuilt

import (
	"context"
	"fmt"

	"github.com/flowstate/pregel"
	"github.com/flowstate/pregel/model"
	"github.com/flowstate/pregel/tool"
)

// RouteExit and RouteTools are the values ReactAgent writes to its "route"
// channel, exposed for callers that want to observe routing via emit or
// tests rather than just the final output.
const (
	RouteExit  = "exit"
	RouteTools = "tools"
)

// ReactAgent compiles a ReAct-style agent/tools/exit loop (scenario: a model
// repeatedly calling tools until it can answer directly): an agent node
// calls m, and — unless the model stopped requesting tools, or the run is on
// its last admitted recursion step — a tools node executes every requested
// call concurrently and feeds the results back for another turn.
type ReactAgent struct {
	model        model.ChatModel
	tools        *tool.Registry
	toolSpecs    []model.ToolSpec
	systemPrompt string
	modelName    string // for cost_usd estimation via pregel.EstimateCost; empty disables it
}

// NewReactAgent builds a ReactAgent that calls m and dispatches tool calls
// through tools, advertising toolSpecs as the model's available tools.
func NewReactAgent(m model.ChatModel, tools *tool.Registry, toolSpecs []model.ToolSpec, systemPrompt string) *ReactAgent {
	return &ReactAgent{model: m, tools: tools, toolSpecs: toolSpecs, systemPrompt: systemPrompt}
}

// WithCostModel names the model m actually calls (e.g. "gpt-4o"), so the
// compiled graph's "cost_usd" channel accumulates an estimated spend across
// the run's turns via pregel.EstimateCost.
func (a *ReactAgent) WithCostModel(modelName string) *ReactAgent {
	a.modelName = modelName
	return a
}

// Compile lowers the agent into a pregel.Graph. Invoke's input is the user's
// message content (a string); its output is the full []model.Message
// conversation once the agent stops requesting tools or the configured
// RecursionLimit forces an answer.
func (a *ReactAgent) Compile(opts ...pregel.Option) (*pregel.Graph, error) {
	g, err := pregel.NewGraph(opts...)
	if err != nil {
		return nil, err
	}

	g.AddChannel("input", pregel.NewLastValue[any]())
	g.AddChannel("output", pregel.NewLastValue[any]())
	g.AddChannel("messages", pregel.NewTopic[model.Message](pregel.WithAccumulate()))
	g.AddChannel("tool_results", pregel.NewTopic[model.Message]())
	g.AddChannel("pending_calls", pregel.NewLastValue[any]())
	g.AddChannel("route", pregel.NewLastValue[any]())
	g.AddChannel(pregel.ChannelIsLastStep, pregel.NewLastValue[any]())
	g.AddChannel("cost_usd", pregel.NewBinaryOperatorAggregate(0.0, func(acc, w float64) float64 { return acc + w }))

	agentNode, err := a.buildAgentNode()
	if err != nil {
		return nil, err
	}
	if err := g.AddNode(agentNode); err != nil {
		return nil, err
	}

	toolsNode, err := a.buildToolsNode()
	if err != nil {
		return nil, err
	}
	if err := g.AddNode(toolsNode); err != nil {
		return nil, err
	}

	if err := g.Compile(); err != nil {
		return nil, err
	}
	return g, nil
}

// agentTurn carries an agent invocation's result across to its Writer:
// routing (Apply) needs both the new message and whether the model asked
// for tools, without re-deriving it from the raw model.ChatOut.
type agentTurn struct {
	message model.Message
	route   string
	calls   []any // []model.ToolCall boxed as any, for the fanout "pending_calls" channel
	final   []model.Message
	cost    float64
}

func (a *ReactAgent) buildAgentNode() (*pregel.Node, error) {
	sub := pregel.SubscribeTo("input", "tool_results").
		Join("messages", pregel.ChannelIsLastStep)

	callable := pregel.Callable(func(ctx context.Context, in any) (any, error) {
		read := in.(map[string]any)
		history, _ := read["messages"].([]model.Message)

		var turnInput []model.Message
		if userMsg, ok := read["input"]; ok && userMsg != nil {
			turnInput = append(turnInput, model.Message{Role: model.RoleUser, Content: fmt.Sprint(userMsg)})
		}
		if results, ok := read["tool_results"].([]model.Message); ok {
			turnInput = append(turnInput, results...)
		}

		full := append(append([]model.Message(nil), history...), turnInput...)
		prompt := full
		if a.systemPrompt != "" {
			prompt = append([]model.Message{{Role: model.RoleSystem, Content: a.systemPrompt}}, full...)
		}

		out, err := a.model.Chat(ctx, prompt, a.toolSpecs)
		if err != nil {
			return nil, err
		}
		assistant := model.Message{Role: model.RoleAssistant, Content: out.Text}
		var cost float64
		if a.modelName != "" {
			cost = pregel.EstimateCost(a.modelName, out.Usage.InputTokens, out.Usage.OutputTokens)
		}

		isLastStep, _ := read[pregel.ChannelIsLastStep].(bool)
		if len(out.ToolCalls) == 0 || isLastStep {
			return agentTurn{
				message: assistant,
				route:   RouteExit,
				final:   append(append([]model.Message(nil), full...), assistant),
				cost:    cost,
			}, nil
		}

		calls := make([]any, len(out.ToolCalls))
		for i, tc := range out.ToolCalls {
			calls[i] = tc
		}
		return agentTurn{message: assistant, route: RouteTools, calls: calls, cost: cost}, nil
	})

	writer := pregel.WriteToMap(map[string]any{
		"messages": func(output any) any { return output.(agentTurn).message },
		"route":    func(output any) any { return output.(agentTurn).route },
		"pending_calls": func(output any) any {
			return output.(agentTurn).calls
		},
		"output":   func(output any) any { return output.(agentTurn).final },
		"cost_usd": func(output any) any { return output.(agentTurn).cost },
	})

	return sub.Do(callable).WriteTo(writer).Build("agent")
}

// toolTurn carries one tools-node invocation's result to its Writer.
type toolTurn struct {
	result model.Message
}

func (a *ReactAgent) buildToolsNode() (*pregel.Node, error) {
	callable := pregel.Callable(func(ctx context.Context, in any) (any, error) {
		tc, ok := in.(model.ToolCall)
		if !ok {
			return toolTurn{}, nil
		}
		out, err := a.tools.Call(ctx, tc.Name, tc.Input)
		if err != nil {
			return toolTurn{result: model.Message{Role: model.RoleUser, Content: fmt.Sprintf("tool %s failed: %v", tc.Name, err)}}, nil
		}
		return toolTurn{result: model.Message{Role: model.RoleUser, Content: fmt.Sprintf("%s result: %v", tc.Name, out)}}, nil
	})

	writer := pregel.Writer{
		Channels: []string{"tool_results", "messages"},
		Apply: func(output any) map[string][]any {
			msg := output.(toolTurn).result
			return map[string][]any{
				"tool_results": {msg},
				"messages":     {msg},
			}
		},
	}

	return pregel.SubscribeToEach("pending_calls").Do(callable).WriteTo(writer).Build("tools")
}
