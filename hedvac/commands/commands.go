package commands

import (
	"github.com/disgoorg/disgo/discord"
)

var Commands = []discord.ApplicationCommandCreate{
	Register,
	Balance,
	Deposit,
	Send,
	History,
	Rain,
	Loot,
	Withdraw,
	Stats,
}
