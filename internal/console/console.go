// Package console is the interactive terminal surface: one question per line,
// the generated SQL and the answer printed back.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/chat"
	"github.com/carchat/carchat/internal/schema"
	"github.com/carchat/carchat/internal/session"
)

const (
	cmdHistory = "/history"
	cmdSchema  = "/schema"
	cmdQuit    = "/quit"
	cmdHelp    = "/help"
)

type TurnRunner interface {
	Turn(ctx context.Context, s *session.Session, utterance string) (chat.TurnResult, error)
}

type Console struct {
	Chat    TurnRunner
	Session *session.Session
	Schema  schema.Description
	In      io.Reader
	Out     io.Writer
	Prompt  string
}

var (
	sqlStyle   = pterm.NewStyle(pterm.FgLightCyan)
	errorStyle = pterm.NewStyle(pterm.FgRed)
	titleStyle = pterm.NewStyle(pterm.FgCyan, pterm.Bold)
)

// Run reads until EOF, /quit or ctx cancellation. Per-turn failures are
// printed and the loop continues.
func (c *Console) Run(ctx context.Context) error {
	prompt := c.Prompt
	if prompt == "" {
		prompt = "> "
	}
	c.println(titleStyle.Sprint("Chat with the car listings database") + " (type " + cmdHelp + " for commands)")

	scanner := bufio.NewScanner(c.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(c.Out, prompt)
		if !scanner.Scan() {
			c.println("")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdHelp:
			c.println(cmdHistory + "  list the questions asked in this session")
			c.println(cmdSchema + "   show the tables the assistant can query")
			c.println(cmdQuit + "     leave")
			continue
		case cmdHistory:
			c.printHistory()
			continue
		case cmdSchema:
			c.println(c.Schema.String())
			continue
		}
		c.turn(ctx, line)
	}
}

func (c *Console) turn(ctx context.Context, question string) {
	result, err := c.Chat.Turn(ctx, c.Session, question)
	if result.SQL != "" {
		c.println(sqlStyle.Sprint(result.SQL))
	}
	if err != nil {
		c.println(errorStyle.Sprint("error: " + apperr.UserMessage(err)))
		return
	}
	if result.Result.Failed() && result.Result.Err != nil {
		c.println(errorStyle.Sprint("error: " + apperr.UserMessage(result.Result.Err)))
	}
	c.println(strings.TrimSpace(result.Answer))
}

func (c *Console) printHistory() {
	questions := c.Session.History.Questions()
	if len(questions) == 0 {
		c.println("no questions yet")
		return
	}
	items := make([]pterm.BulletListItem, 0, len(questions))
	for i, q := range questions {
		items = append(items, pterm.BulletListItem{Level: 0, Text: fmt.Sprintf("%d. %s", i+1, q)})
	}
	rendered, err := pterm.DefaultBulletList.WithItems(items).Srender()
	if err != nil {
		for _, item := range items {
			c.println(item.Text)
		}
		return
	}
	fmt.Fprint(c.Out, rendered)
}

func (c *Console) println(text string) {
	fmt.Fprintln(c.Out, text)
}
