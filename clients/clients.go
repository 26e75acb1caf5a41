package clients

import (
	"koltracker/clients/dexscreener"
	"koltracker/clients/discord"
	"koltracker/clients/gist"
	"koltracker/clients/helius"
	"koltracker/clients/heliusevents"
	"koltracker/clients/notifier"
	"koltracker/config"

	"go.uber.org/zap"
)

type Clients struct {
	Logger *zap.Logger

	Discord      *discord.DiscordClient
	Notifier     notifier.Notifier // Combined notifier for all channels
	Helius       *helius.Client
	HeliusEvents *heliusevents.HeliusEventsClient
	Dexscreener  *dexscreener.Client
	Gist         *gist.Client
}

func NewClients(logger *zap.Logger, cfg *config.Config) *Clients {
	discordClient := discord.NewDiscordClient(logger, cfg)

	// Create combined notifier for all channels
	multiNotifier := notifier.NewMultiNotifier(discordClient)

	return &Clients{
		Logger:       logger,
		Discord:      discordClient,
		Notifier:     multiNotifier,
		Helius:       helius.NewClient(logger, cfg),
		HeliusEvents: heliusevents.NewHeliusEventsClient(logger, cfg),
		Dexscreener:  dexscreener.NewClient(logger, cfg),
		Gist:         gist.NewClient(logger, cfg),
	}
}
