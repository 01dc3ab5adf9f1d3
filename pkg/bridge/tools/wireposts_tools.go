package tools

import (
	"context"

	"github.com/voxline/voxline/pkg/bridge/identity"
	"github.com/voxline/voxline/pkg/bridge/tools/adapters/wireposts"
)

// Tool names as advertised to the AI session.
const (
	ToolSearchPosts       = "search_posts"
	ToolTrendingTopics    = "trending_topics"
	ToolReadMentions      = "read_mentions"
	ToolPublishPost       = "publish_post"
	ToolSendDirectMessage = "send_direct_message"
)

// WirepostsTools builds the full executor set over one platform client.
func WirepostsTools(client *wireposts.Client) []Executor {
	return []Executor{
		&searchPostsTool{client: client},
		&trendingTopicsTool{client: client},
		&readMentionsTool{client: client},
		&publishPostTool{client: client},
		&sendDirectMessageTool{client: client},
	}
}

type searchPostsTool struct {
	client *wireposts.Client
}

func (t *searchPostsTool) Name() string { return ToolSearchPosts }

func (t *searchPostsTool) Description() string {
	return "Search public wireposts posts by keyword. Use for questions about what people are saying on the platform."
}

func (t *searchPostsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search keywords",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum posts to return, default 5",
			},
		},
		"required": []string{"query"},
	}
}

func (t *searchPostsTool) RequiresAuth() bool { return false }

func (t *searchPostsTool) Execute(ctx context.Context, args map[string]any, _ *identity.Identity) Result {
	query := stringArg(args, "query")
	if query == "" {
		return failure("query is required")
	}
	posts, err := t.client.SearchPosts(ctx, query, intArg(args, "limit", 5))
	if err != nil {
		return failure("search failed: %v", err)
	}
	return Result{Success: true, Data: map[string]any{"posts": posts}}
}

type trendingTopicsTool struct {
	client *wireposts.Client
}

func (t *trendingTopicsTool) Name() string { return ToolTrendingTopics }

func (t *trendingTopicsTool) Description() string {
	return "List the topics currently trending on wireposts."
}

func (t *trendingTopicsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum topics to return, default 10",
			},
		},
	}
}

func (t *trendingTopicsTool) RequiresAuth() bool { return false }

func (t *trendingTopicsTool) Execute(ctx context.Context, args map[string]any, _ *identity.Identity) Result {
	topics, err := t.client.TrendingTopics(ctx, intArg(args, "limit", 10))
	if err != nil {
		return failure("trending lookup failed: %v", err)
	}
	return Result{Success: true, Data: map[string]any{"topics": topics}}
}

type readMentionsTool struct {
	client *wireposts.Client
}

func (t *readMentionsTool) Name() string { return ToolReadMentions }

func (t *readMentionsTool) Description() string {
	return "Read recent posts that mention the caller's linked wireposts account."
}

func (t *readMentionsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum mentions to return, default 5",
			},
		},
	}
}

func (t *readMentionsTool) RequiresAuth() bool { return true }

func (t *readMentionsTool) Execute(ctx context.Context, args map[string]any, ident *identity.Identity) Result {
	mentions, err := t.client.ReadMentions(ctx, ident.AccessToken, intArg(args, "limit", 5))
	if err != nil {
		return failure("reading mentions failed: %v", err)
	}
	return Result{Success: true, Data: map[string]any{"mentions": mentions}}
}

type publishPostTool struct {
	client *wireposts.Client
}

func (t *publishPostTool) Name() string { return ToolPublishPost }

func (t *publishPostTool) Description() string {
	return "Publish a new post to the caller's linked wireposts account. Confirm the exact text with the caller before publishing."
}

func (t *publishPostTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The post text, verbatim",
			},
		},
		"required": []string{"text"},
	}
}

func (t *publishPostTool) RequiresAuth() bool { return true }

func (t *publishPostTool) Execute(ctx context.Context, args map[string]any, ident *identity.Identity) Result {
	text := stringArg(args, "text")
	if text == "" {
		return failure("text is required")
	}
	post, err := t.client.PublishPost(ctx, ident.AccessToken, text)
	if err != nil {
		return failure("publishing failed: %v", err)
	}
	return Result{Success: true, Data: map[string]any{"post_id": post.ID}}
}

type sendDirectMessageTool struct {
	client *wireposts.Client
}

func (t *sendDirectMessageTool) Name() string { return ToolSendDirectMessage }

func (t *sendDirectMessageTool) Description() string {
	return "Send a private direct message from the caller's linked wireposts account to another user."
}

func (t *sendDirectMessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipient": map[string]any{
				"type":        "string",
				"description": "Username of the recipient",
			},
			"text": map[string]any{
				"type":        "string",
				"description": "The message text",
			},
		},
		"required": []string{"recipient", "text"},
	}
}

func (t *sendDirectMessageTool) RequiresAuth() bool { return true }

func (t *sendDirectMessageTool) Execute(ctx context.Context, args map[string]any, ident *identity.Identity) Result {
	recipient := stringArg(args, "recipient")
	text := stringArg(args, "text")
	if recipient == "" || text == "" {
		return failure("recipient and text are required")
	}
	if err := t.client.SendDirectMessage(ctx, ident.AccessToken, recipient, text); err != nil {
		return failure("sending message failed: %v", err)
	}
	return Result{Success: true, Data: map[string]any{"delivered_to": recipient}}
}
