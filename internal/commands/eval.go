package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/keshon/kupumalam/internal/dispatch"
	"github.com/keshon/kupumalam/internal/reply"

	"github.com/dop251/goja"
)

const (
	defaultEvalTimeout = 5 * time.Second
	evalChunkSize      = 1890
)

func (d Deps) eval(ctx context.Context, c *dispatch.Context) error {
	code := c.Interaction.String("code")
	if err := c.Responder.Defer(ctx, true); err != nil {
		return err
	}

	out, err := runScript(ctx, code, d.EvalTimeout, d.scriptGlobals(c.Interaction))
	if err != nil {
		msg := truncateRunes(err.Error(), evalChunkSize)
		return c.Responder.EditReply(ctx, reply.Text("❌ **Error:**\n```js\n"+msg+"\n```").Private())
	}

	if utf8.RuneCountInString(out) <= evalChunkSize {
		return c.Responder.EditReply(ctx, reply.Text("✅ **Result:**\n```js\n"+out+"\n```").Private())
	}
	if err := c.Responder.EditReply(ctx, reply.Text("📋 **Result too long. Splitting into chunks:**").Private()); err != nil {
		return err
	}
	for _, chunk := range chunkRunes(out, evalChunkSize) {
		if err := c.Responder.FollowUp(ctx, reply.Text("```js\n"+chunk+"\n```").Private()); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) scriptGlobals(in *dispatch.Interaction) map[string]any {
	g := map[string]any{
		"interaction": map[string]any{
			"user":    in.UserID,
			"guild":   in.GuildID,
			"channel": in.ChannelID,
			"shard":   in.ShardID,
		},
	}
	if d.Runtime != nil {
		g["bot"] = map[string]any{
			"guilds":    len(d.Runtime.Guilds()),
			"latencyMs": d.Runtime.Latency(in.ShardID).Milliseconds(),
			"uptime":    time.Since(d.Runtime.StartedAt()).Round(time.Second).String(),
		}
	}
	return g
}

// runScript evaluates code in a fresh runtime. Code containing await is
// wrapped in an async function, so it must return its result. The run is
// interrupted after timeout or when ctx ends.
func runScript(ctx context.Context, code string, timeout time.Duration, globals map[string]any) (string, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return "", fmt.Errorf("bind %s: %w", name, err)
		}
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(fmt.Sprintf("execution timed out after %s", timeout))
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	if strings.Contains(code, "await") {
		code = "(async () => { " + code + " })()"
	}
	v, err := vm.RunString(code)
	if err != nil {
		return "", err
	}

	if p, ok := v.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateRejected:
			return "", fmt.Errorf("promise rejected: %s", p.Result().String())
		case goja.PromiseStatePending:
			return "", errors.New("promise did not settle")
		}
		v = p.Result()
	}
	return formatValue(v), nil
}

func formatValue(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "null"
	}
	exported := v.Export()
	if s, ok := exported.(string); ok {
		return s
	}
	if b, err := json.MarshalIndent(exported, "", "  "); err == nil {
		return string(b)
	}
	return v.String()
}

func chunkRunes(s string, size int) []string {
	var out []string
	r := []rune(s)
	for len(r) > size {
		out = append(out, string(r[:size]))
		r = r[size:]
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
