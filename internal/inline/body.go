package inline

import (
	"strings"
	"time"

	"github.com/quailyquaily/taskernetbot/internal/markdown"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/quailyquaily/taskernetbot/internal/telegram"
	"github.com/quailyquaily/taskernetbot/internal/telegramutil"
)

const dateLayout = "02 January 2006"

type MessageBody struct {
	Text      string
	ParseMode string
}

// BuildMessageBody renders the message a user posts by picking a share:
//
//	\n#{type}\n\n*{name}*\n\nViews: {v} | Downloads: {d}\n{date line}\n{tags}{description}
func BuildMessageBody(share taskernet.Share, loc *time.Location) MessageBody {
	var b strings.Builder
	b.WriteString("\n#")
	b.WriteString(share.Type)
	b.WriteString("\n\n*")
	b.WriteString(share.Name)
	b.WriteString("*\n\n")
	b.WriteString(share.StatsLine())
	b.WriteString("\n")
	if share.Date != nil {
		b.WriteString("Date: ")
		b.WriteString(FormatDate(*share.Date, loc))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(share.HashTags())
	if share.Description != nil {
		b.WriteString(markdown.RenderDescription(*share.Description))
	}
	return MessageBody{Text: b.String(), ParseMode: telegramutil.ParseModeMarkdown}
}

// FormatDate renders epoch milliseconds as "DD Month YYYY" in loc (UTC when nil).
func FormatDate(epochMillis int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(epochMillis).In(loc).Format(dateLayout)
}

// ActionKeyboard is the button row attached to every presented share.
func ActionKeyboard(query, shareURL string) telegram.InlineKeyboardMarkup {
	q := query
	row := []telegram.InlineKeyboardButton{
		{Text: "Search again", SwitchInlineQueryCurrentChat: &q},
	}
	if strings.TrimSpace(shareURL) != "" {
		row = append(row, telegram.InlineKeyboardButton{Text: "Open in Browser", URL: shareURL})
	}
	return telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{row}}
}
