package slackgw

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"threadpilot/internal/chat"
)

// Slack caps section text at 3000 characters.
const maxSectionChars = 3000

const (
	actionApprove      = "approve"
	actionDeny         = "deny"
	actionToggleOutput = "toggle_output"
)

// renderBlocks maps a content variant to Block Kit blocks. The variant set is
// closed; an unknown one falls back to its plain-text form.
func renderBlocks(content chat.Content) []slack.Block {
	switch c := content.(type) {
	case chat.Text:
		return textBlocks(ToMrkdwn(c.Body))
	case chat.ToolLog:
		return toolLogBlocks(c)
	case chat.TaskList:
		return taskListBlocks(c)
	case chat.ApprovalPrompt:
		return approvalBlocks(c)
	default:
		return textBlocks(content.Fallback())
	}
}

func mrkdwnSection(text string) *slack.SectionBlock {
	if text == "" {
		text = " "
	}
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func textBlocks(body string) []slack.Block {
	blocks := make([]slack.Block, 0, 1)
	for _, chunk := range splitChunks(body, maxSectionChars) {
		blocks = append(blocks, mrkdwnSection(chunk))
	}
	if len(blocks) == 0 {
		blocks = append(blocks, mrkdwnSection(" "))
	}
	return blocks
}

// splitChunks breaks text on line boundaries so no chunk exceeds max. A
// single oversized line is split mid-line as a last resort.
func splitChunks(text string, max int) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	if len(text) <= max {
		return []string{text}
	}
	chunks := make([]string, 0, len(text)/max+1)
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		for len(line) > max {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, line[:max])
			line = line[max:]
		}
		if current.Len()+len(line)+1 > max {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func toolLogBlocks(log chat.ToolLog) []slack.Block {
	blocks := make([]slack.Block, 0, 3)

	if log.Expanded && len(log.Older) > 0 {
		blocks = append(blocks, mrkdwnSection(logLines(log.Older)))
	}
	blocks = append(blocks, mrkdwnSection(logLines(log.Recent)))

	if len(log.Older) > 0 {
		label := fmt.Sprintf("Show %d earlier", len(log.Older))
		if log.Expanded {
			label = "Hide earlier"
		}
		button := slack.NewButtonBlockElement(actionToggleOutput, log.SessionKey,
			slack.NewTextBlockObject(slack.PlainTextType, label, false, false))
		blocks = append(blocks, slack.NewActionBlock("", button))
	}
	return blocks
}

func logLines(lines []string) string {
	if len(lines) == 0 {
		return "_no activity yet_"
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, "▸ "+line)
	}
	return strings.Join(out, "\n")
}

func taskListBlocks(list chat.TaskList) []slack.Block {
	if len(list.Items) == 0 {
		return []slack.Block{mrkdwnSection("_no tasks_")}
	}
	lines := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		switch item.Status {
		case chat.TaskCompleted:
			lines = append(lines, ":white_check_mark: ~"+item.Text+"~")
		case chat.TaskInProgress:
			lines = append(lines, ":arrow_forward: *"+item.Text+"*")
		default:
			lines = append(lines, ":white_circle: "+item.Text)
		}
	}
	return textBlocks(strings.Join(lines, "\n"))
}

func approvalBlocks(p chat.ApprovalPrompt) []slack.Block {
	header := fmt.Sprintf(":lock: The agent wants to run *%s*", p.ToolName)
	blocks := []slack.Block{mrkdwnSection(header)}

	if input := strings.TrimSpace(p.Input); input != "" {
		if len(input) > maxSectionChars-10 {
			input = input[:maxSectionChars-10]
		}
		blocks = append(blocks, mrkdwnSection("```"+input+"```"))
	}

	switch p.State {
	case chat.ApprovalPending:
		approve := slack.NewButtonBlockElement(actionApprove, p.ID,
			slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false))
		approve.Style = slack.StylePrimary
		deny := slack.NewButtonBlockElement(actionDeny, p.ID,
			slack.NewTextBlockObject(slack.PlainTextType, "Deny", false, false))
		deny.Style = slack.StyleDanger
		blocks = append(blocks, slack.NewActionBlock("", approve, deny))
		if !p.Deadline.IsZero() {
			remaining := time.Until(p.Deadline).Round(time.Second)
			if remaining > 0 {
				note := slack.NewTextBlockObject(slack.MarkdownType,
					fmt.Sprintf("Expires in %s", remaining), false, false)
				blocks = append(blocks, slack.NewContextBlock("", note))
			}
		}
	case chat.ApprovalApproved:
		blocks = append(blocks, contextLine(":white_check_mark: Approved"))
	case chat.ApprovalDenied:
		blocks = append(blocks, contextLine(":no_entry: Denied"))
	case chat.ApprovalExpired:
		blocks = append(blocks, contextLine(":hourglass: Timed out"))
	}
	return blocks
}

func contextLine(text string) *slack.ContextBlock {
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}
