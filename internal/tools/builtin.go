package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/taskgraph/internal/core"
)

// DefaultAnswerPrefix is prepended by the answer tool when no prefix is configured.
const DefaultAnswerPrefix = "OUT:"

// Answer returns its query behind a fixed prefix. It stands in for a model
// call and makes data flow through a graph visible in the result.
type Answer struct {
	Prefix string
}

// Invoke implements core.Tool.
func (a Answer) Invoke(ctx context.Context, args core.ToolArgs) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return a.Prefix + args.Query, nil
}

// Echo returns its query unchanged.
func Echo() core.Tool {
	return core.ToolFunc(func(ctx context.Context, args core.ToolArgs) (string, error) {
		return args.Query, ctx.Err()
	})
}

// Upper returns its query in upper case.
func Upper() core.Tool {
	return core.ToolFunc(func(ctx context.Context, args core.ToolArgs) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return strings.ToUpper(args.Query), nil
	})
}

// Join appends the node's "parts" argument to the query, separated by the
// "sep" argument (default a single space).
func Join() core.Tool {
	return core.ToolFunc(func(ctx context.Context, args core.ToolArgs) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		sep := " "
		if s, ok := args.Args["sep"]; ok {
			str, ok := s.(string)
			if !ok {
				return "", core.ErrValidation(core.CodeInvalidNode,
					fmt.Sprintf("node %q: sep must be a string", args.NodeID))
			}
			sep = str
		}

		parts := []string{}
		if args.Query != "" {
			parts = append(parts, args.Query)
		}
		switch raw := args.Args["parts"].(type) {
		case nil:
		case []string:
			parts = append(parts, raw...)
		case []any:
			for _, p := range raw {
				parts = append(parts, fmt.Sprint(p))
			}
		default:
			return "", core.ErrValidation(core.CodeInvalidNode,
				fmt.Sprintf("node %q: parts must be a list", args.NodeID))
		}
		return strings.Join(parts, sep), nil
	})
}
