package discord

import (
	"fmt"
	"strings"
	"time"

	"koltracker/clients/notifier"
	"koltracker/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordClient sends swap alerts to Discord.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.ChannelID

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord alerts disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
		}
	}

	logger.Info("discord bot initialized", zap.String("channelID", channelID))

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
	}
}

// SendMessage sends a plain text message.
func (dc *DiscordClient) SendMessage(message string) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping message")
		return
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, message)
	if err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord message")
}

// SendTradeAlert sends a rich embedded swap alert.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendTradeAlert(alert notifier.TradeAlert) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping alert")
		return
	}

	embed := dc.buildTradeEmbed(alert)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord trade alert",
		zap.String("kol", alert.KolName),
		zap.String("token", alert.TokenSymbol),
	)
}

func (dc *DiscordClient) buildTradeEmbed(alert notifier.TradeAlert) *discordgo.MessageEmbed {
	color := 0x2ECC71 // Green for BUY
	sideEmoji := "🟢"
	if strings.ToUpper(alert.Side) == "SELL" {
		color = 0xE74C3C // Red for SELL
		sideEmoji = "🔴"
	}

	kolDisplay := alert.KolName
	if alert.Wallet != "" {
		kolDisplay = fmt.Sprintf("[%s (%s)](https://solscan.io/account/%s)",
			alert.KolName, shortAddress(alert.Wallet), alert.Wallet)
	}

	tokenDisplay := alert.TokenSymbol
	if tokenDisplay == "" {
		tokenDisplay = shortAddress(alert.TokenMint)
	}
	if alert.TokenMint != "" {
		tokenDisplay = fmt.Sprintf("[%s](https://dexscreener.com/solana/%s)",
			tokenDisplay, alert.TokenMint)
	}

	mcStr := "N/A"
	if alert.MarketCap > 0 {
		mcStr = formatUSD(alert.MarketCap)
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "KOL",
			Value:  kolDisplay,
			Inline: true,
		},
		{
			Name:   "Side",
			Value:  fmt.Sprintf("%s %s", sideEmoji, alert.Side),
			Inline: true,
		},
		{
			Name:   "Value",
			Value:  fmt.Sprintf("$%.2f", alert.ValueUSD),
			Inline: true,
		},
		{
			Name:   "Token",
			Value:  tokenDisplay,
			Inline: true,
		},
		{
			Name:   "Market Cap",
			Value:  mcStr,
			Inline: true,
		},
	}

	if alert.Signature != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Tx",
			Value:  fmt.Sprintf("[%s](https://solscan.io/tx/%s)", shortAddress(alert.Signature), alert.Signature),
			Inline: true,
		})
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("%s Swap: %s %s", sideEmoji, alert.KolName, alert.Side),
		Color:     color,
		Fields:    fields,
		Timestamp: ts.Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: alert.Source,
		},
	}
}

// Close cleans up the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session == nil {
		return nil
	}
	return dc.session.Close()
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

func formatUSD(v float64) string {
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("$%.2fB", v/1_000_000_000)
	case v >= 1_000_000:
		return fmt.Sprintf("$%.2fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fK", v/1_000)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}
