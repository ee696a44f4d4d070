package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/Chative-Support-Orchestrator/agent/nodes/orchestrator"
)

const (
	nodeClassifyIntent = "classify_intent"
	nodeSummarize      = "summarize"
	nodeConsult        = "consult"
	nodeRefund         = "refund"
	nodeRetrieve       = "retrieve"
	nodeScoreSentiment = "score_sentiment"
	nodeDecideAction   = "decide_action"
	nodeBuildHandoff   = "build_handoff"
	nodeFinalizeReply  = "finalize_reply"

	defaultMaxRunSteps = 24
)

type stepFunc func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error)

func (o *Orchestrator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[*nodex.GraphState, *nodex.GraphState], error) {
	graph := compose.NewGraph[*nodex.GraphState, *nodex.GraphState]()
	d := o.deps

	steps := []struct {
		name string
		fn   stepFunc
	}{
		{nodeClassifyIntent, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyIntent(ctx, in, d)
		}},
		{nodeSummarize, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Summarize(ctx, in, d)
		}},
		{nodeConsult, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Consult(ctx, in, d)
		}},
		{nodeRefund, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Refund(ctx, in, d)
		}},
		{nodeRetrieve, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Retrieve(ctx, in, d)
		}},
		{nodeScoreSentiment, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ScoreSentiment(ctx, in, d)
		}},
		{nodeDecideAction, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DecideAction(ctx, in, d)
		}},
		{nodeBuildHandoff, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.BuildHandoff(ctx, in, d)
		}},
		{nodeFinalizeReply, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.FinalizeReply(in, d.HistoryLimit)
		}},
	}

	for _, step := range steps {
		name, fn := step.name, step.fn
		if err := graph.AddLambdaNode(name,
			compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
				defer o.metrics.ObserveNode(name)()
				return fn(ctx, in)
			}),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", name, err)
		}
	}

	edges := [][2]string{
		{compose.START, nodeClassifyIntent},
		{nodeClassifyIntent, nodeSummarize},
		{nodeRetrieve, nodeScoreSentiment},
		{nodeScoreSentiment, nodeDecideAction},
		{nodeBuildHandoff, nodeFinalizeReply},
		{nodeFinalizeReply, compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	branches := []struct {
		from    string
		route   func(in *nodex.GraphState) string
		targets []string
	}{
		{
			from: nodeSummarize,
			route: func(in *nodex.GraphState) string {
				switch in.Intake {
				case nodex.IntakeHandoff:
					return nodeBuildHandoff
				case nodex.IntakeConsult:
					return nodeConsult
				case nodex.IntakeRefund:
					return nodeRefund
				default:
					return nodeRetrieve
				}
			},
			targets: []string{nodeBuildHandoff, nodeConsult, nodeRefund, nodeRetrieve},
		},
		{
			from: nodeConsult,
			route: func(in *nodex.GraphState) string {
				if in.ConsultNext == nodex.ConsultSearch {
					return nodeRetrieve
				}
				return nodeFinalizeReply
			},
			targets: []string{nodeRetrieve, nodeFinalizeReply},
		},
		{
			from: nodeRefund,
			route: func(in *nodex.GraphState) string {
				if in.RefundNext == nodex.RefundEscalate {
					return nodeBuildHandoff
				}
				return nodeFinalizeReply
			},
			targets: []string{nodeBuildHandoff, nodeFinalizeReply},
		},
		{
			from: nodeDecideAction,
			route: func(in *nodex.GraphState) string {
				switch in.Decision {
				case nodex.DecisionEscalate:
					return nodeBuildHandoff
				case nodex.DecisionConsult:
					return nodeConsult
				default:
					return nodeFinalizeReply
				}
			},
			targets: []string{nodeBuildHandoff, nodeConsult, nodeFinalizeReply},
		},
	}

	for _, b := range branches {
		route := b.route
		ends := make(map[string]bool, len(b.targets))
		for _, t := range b.targets {
			ends[t] = true
		}
		branch := compose.NewGraphBranch(func(ctx context.Context, in *nodex.GraphState) (string, error) {
			return route(in), nil
		}, ends)
		if err := graph.AddBranch(b.from, branch); err != nil {
			return nil, fmt.Errorf("add branch from %s: %w", b.from, err)
		}
	}

	maxSteps := o.cfg.MaxRunSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxRunSteps
	}
	runner, err := graph.Compile(ctx,
		compose.WithGraphName("orchestrator.handle_message"),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
