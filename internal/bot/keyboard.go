package bot

import (
	"regexp"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maauso/screenshot-bot/internal/screenshot"
)

const (
	countPrefix  = "ss_"
	countsPerRow = 5
)

var countPattern = regexp.MustCompile(`^ss_\d+$`)

// CountKeyboard offers every screenshot count from 1 to screenshot.MaxCount,
// five buttons per row.
func CountKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, screenshot.MaxCount/countsPerRow)
	row := make([]tgbotapi.InlineKeyboardButton, 0, countsPerRow)
	for i := 1; i <= screenshot.MaxCount; i++ {
		n := strconv.Itoa(i)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(n, countPrefix+n))
		if i%countsPerRow == 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = make([]tgbotapi.InlineKeyboardButton, 0, countsPerRow)
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ParseCount reads a count selection payload. ok is false for payloads
// that are not ss_<N> or whose N is outside 1..screenshot.MaxCount.
func ParseCount(data string) (count int, ok bool) {
	if !countPattern.MatchString(data) {
		return 0, false
	}
	n, err := strconv.Atoi(data[len(countPrefix):])
	if err != nil || n < 1 || n > screenshot.MaxCount {
		return 0, false
	}
	return n, true
}
