package handlers

import (
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"

	"github.com/hedvacbot/hedvac/hedvac/activity"
)

// MessageActivityListener feeds guild message authors into the tracker.
func MessageActivityListener(tracker *activity.Tracker) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildMessageCreate) {
		if e.Message.Author.Bot {
			return
		}
		tracker.Touch(e.GuildID.String(), e.Message.Author.ID.String())
	})
}

// PresenceActivityListener feeds presence updates into the tracker.
func PresenceActivityListener(tracker *activity.Tracker) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.PresenceUpdate) {
		tracker.Touch(e.GuildID.String(), e.PresenceUser.ID.String())
	})
}
